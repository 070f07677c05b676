package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/session"
	"github.com/roach88/cohort/internal/settings"
	"github.com/roach88/cohort/internal/storage"
	"github.com/roach88/cohort/internal/track"
	"github.com/roach88/cohort/internal/worker"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	DataPath   string
	SQLitePath string

	// Clock and TokenGenerator allow deterministic overrides (for
	// testing). If nil, the wall clock and UUIDv7 tokens are used.
	Clock          session.Clock
	TokenGenerator session.TokenGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <definition-file>",
		Short: "Run a scripted experiment session from a definition file",
		Long: `Run a full experiment session from a YAML or CUE definition.

The session's blocks and trials are created from the definition, every
trial is begun, sampled and ended in order, and the aggregate results
table is flushed to storage before the command returns.

Tracker values are produced by a deterministic ramp sampler, so repeat
runs of the same definition yield identical tracker tables.

Example:
  cohort run --data ./data ./experiment.yaml
  cohort run --data ./data --sqlite ./data/artifacts.db ./experiment.cue --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DataPath, "data", "", "base path for session data (required)")
	cmd.Flags().StringVar(&opts.SQLitePath, "sqlite", "", "also persist artifacts to this SQLite database")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runExperiment(opts *RunOptions, definitionPath string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("loading definition", "path", definitionPath)
	def, err := LoadDefinition(definitionPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load definition", err)
	}
	slog.Info("definition loaded",
		"experiment", def.Experiment,
		"blocks", len(def.Blocks),
		"trials", def.TrialCount(),
	)

	w := worker.New()
	defer w.Stop()

	handlers := []storage.Handler{storage.NewFileHandler(opts.DataPath, w)}
	if opts.SQLitePath != "" {
		sh, err := storage.OpenSQLiteHandler(opts.SQLitePath, w)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open artifact database", err)
		}
		defer func() {
			if closeErr := sh.Close(); closeErr != nil {
				slog.Error("error closing artifact database", "error", closeErr)
			}
		}()
		handlers = append(handlers, sh)
	}

	s := buildSession(def, w, handlers, opts)

	if err := s.Begin(def.Experiment, def.PPID, opts.DataPath, def.SessionNum,
		def.ParticipantDetails, settings.FromMap(def.Settings)); err != nil {
		return WrapExitError(ExitCommandError, "failed to begin session", err)
	}

	if err := runAllTrials(s, def.TicksPerTrial); err != nil {
		// Flush whatever completed before reporting the failure.
		if endErr := s.End(); endErr != nil {
			slog.Error("session end failed after trial error", "error", endErr)
		}
		return WrapExitError(ExitFailure, "trial execution failed", err)
	}

	if err := s.End(); err != nil {
		return WrapExitError(ExitFailure, "failed to end session", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Session complete: %d trials written to %s\n",
		def.TrialCount(), storage.SessionPath(opts.DataPath, def.Experiment, def.PPID, def.SessionNum))
	return nil
}

// buildSession constructs the session, blocks, trials and trackers
// declared by the definition.
func buildSession(def *Definition, w *worker.Worker, handlers []storage.Handler, opts *RunOptions) *session.Session {
	var sessionOpts []session.Option
	if def.AdHoc {
		sessionOpts = append(sessionOpts, session.WithAdHocResults())
	}
	if len(def.SettingsToLog) > 0 {
		sessionOpts = append(sessionOpts, session.WithSettingsToLog(def.SettingsToLog...))
	}
	if len(def.CustomHeaders) > 0 {
		sessionOpts = append(sessionOpts, session.WithCustomHeaders(def.CustomHeaders...))
	}
	if opts.Clock != nil {
		sessionOpts = append(sessionOpts, session.WithClock(opts.Clock))
	}
	if opts.TokenGenerator != nil {
		sessionOpts = append(sessionOpts, session.WithTokenGenerator(opts.TokenGenerator))
	}

	s := session.New(w, handlers, sessionOpts...)

	for _, td := range def.Trackers {
		sampler := track.NewRampSampler(len(td.Header), 0, 1)
		s.AddTracker(track.New(td.Name, td.Measurement, td.Header, sampler))
	}

	for _, bd := range def.Blocks {
		b := s.CreateBlock(bd.Trials)
		for k, v := range bd.Settings {
			b.Settings().Set(k, v)
		}
	}

	return s
}

// runAllTrials drives every trial in flattened order: begin, the
// configured number of sampling ticks, end. NoSuchTrial from
// BeginNextTrial is the normal end-of-run signal.
func runAllTrials(s *session.Session, ticksPerTrial int) error {
	for {
		t, err := s.BeginNextTrial()
		if session.IsNoSuchTrial(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("begin trial: %w", err)
		}

		for i := 0; i < ticksPerTrial; i++ {
			if err := s.Tick(); err != nil {
				return fmt.Errorf("trial %d tick %d: %w", t.Number(), i+1, err)
			}
		}

		if err := t.End(); err != nil {
			return fmt.Errorf("end trial %d: %w", t.Number(), err)
		}
	}
}
