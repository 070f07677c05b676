package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationResult holds definition validation results.
type ValidationResult struct {
	Valid      bool   `json:"valid"`
	Experiment string `json:"experiment,omitempty"`
	Blocks     int    `json:"blocks,omitempty"`
	Trials     int    `json:"trials,omitempty"`
	Trackers   int    `json:"trackers,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definition-file>",
		Short: "Validate a definition file without running it",
		Long: `Validate a YAML or CUE experiment definition without running a session.

Performs syntax checking and schema validation, then reports the
session structure the definition would produce. Faster than a dry run
for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, definitionPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	formatter.VerboseLog("Validating %s", definitionPath)

	def, err := LoadDefinition(definitionPath)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr)
		}
		return outputValidateError(formatter, &LoadError{Code: ErrCodeGeneric, Message: err.Error()})
	}

	return outputValidateSuccess(formatter, def)
}

// outputValidateSuccess reports a valid definition and its structure.
func outputValidateSuccess(formatter *OutputFormatter, def *Definition) error {
	result := ValidationResult{
		Valid:      true,
		Experiment: def.Experiment,
		Blocks:     len(def.Blocks),
		Trials:     def.TrialCount(),
		Trackers:   len(def.Trackers),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Definition valid: %s (%d block(s), %d trial(s), %d tracker(s))\n",
		def.Experiment, result.Blocks, result.Trials, result.Trackers)
	return nil
}

// outputValidateError reports a load or validation error.
func outputValidateError(formatter *OutputFormatter, loadErr *LoadError) error {
	_ = formatter.Error(loadErr.Code, loadErr.Message, nil)

	// Missing or unreadable files are command-level errors; definitions
	// that load but fail validation are validation failures.
	code := ExitFailure
	if loadErr.Code == ErrCodeNotFound || loadErr.Code == ErrCodeGeneric {
		code = ExitCommandError
	}
	return NewExitError(code, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
}
