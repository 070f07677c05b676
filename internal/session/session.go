// Package session implements the experiment lifecycle: a Session owns
// an ordered list of Blocks, each Block an ordered list of Trials, and
// coordinates begin/end sequencing, hierarchical settings resolution,
// tracker recording, and the asynchronous persistence of results
// through pluggable data handlers.
//
// Scheduling model: a single foreground control goroutine drives every
// state transition; the persistence worker consumes queued writes on
// one background goroutine. Nothing here blocks the foreground
// goroutine except the final End drain.
package session

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/cohort/internal/settings"
	"github.com/roach88/cohort/internal/storage"
	"github.com/roach88/cohort/internal/table"
	"github.com/roach88/cohort/internal/track"
	"github.com/roach88/cohort/internal/worker"
)

// resultsName is the logical name of the aggregate results table.
const resultsName = "trial_results"

// Session is the top-level orchestrator of one experimental run.
//
// Lifecycle: constructed inert → Begin fixes folder/identity/settings
// and zeroes the position counters → trial begin/end cycles accumulate
// result rows → End aggregates, flushes, drains, and resets back to a
// reusable inert state.
//
// The current position is tracked with plain counters rather than
// object references so nothing dangles across resets.
type Session struct {
	experiment string
	ppid       string
	number     int
	basePath   string
	token      string

	participantDetails map[string]any
	settings           *settings.Settings
	blocks             []*Block
	trackers           []*track.Tracker

	handlers []storage.Handler
	worker   *worker.Worker

	clock    Clock
	tokenGen TokenGenerator

	settingsToLog []string
	customHeaders []string
	adHoc         bool
	snapshotInfo  bool

	initialised     bool
	startedAt       time.Time
	currentTrialNum int
	currentBlockNum int

	events events
}

// Option configures a Session at construction.
type Option func(*Session)

// WithClock overrides the wall clock (tests use a stepping clock).
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithTokenGenerator overrides the session token generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *Session) { s.tokenGen = g }
}

// WithAdHocResults makes result rows lenient: undeclared keys are
// accepted and reconciled into the final schema at End. The default is
// strict, where an undeclared key is a SchemaViolationError at the
// call site.
func WithAdHocResults() Option {
	return func(s *Session) { s.adHoc = true }
}

// WithSettingsToLog declares settings keys whose resolved values are
// copied into every trial's result row at trial end.
func WithSettingsToLog(keys ...string) Option {
	return func(s *Session) { s.settingsToLog = append(s.settingsToLog, keys...) }
}

// WithCustomHeaders declares extra result columns available to every
// trial in strict mode.
func WithCustomHeaders(columns ...string) Option {
	return func(s *Session) { s.customHeaders = append(s.customHeaders, columns...) }
}

// WithoutSessionInfoSnapshot disables the settings and
// participant-details snapshots written during Begin.
func WithoutSessionInfoSnapshot() Option {
	return func(s *Session) { s.snapshotInfo = false }
}

// New creates an inert session that persists through w to the given
// handlers, in the given fan-out order.
func New(w *worker.Worker, handlers []storage.Handler, opts ...Option) *Session {
	s := &Session{
		handlers:     handlers,
		worker:       w,
		clock:        systemClock{},
		tokenGen:     UUIDv7Generator{},
		snapshotInfo: true,
		settings:     settings.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBlock appends a block of trialCount trials. The trials are
// created eagerly; the count is fixed for the block's lifetime. Each
// block's settings node is a child of the session's root, and each
// trial's a child of its block's.
func (s *Session) CreateBlock(trialCount int) *Block {
	b := &Block{
		session:  s,
		settings: settings.NewChild(s.settings),
	}
	b.trials = make([]*Trial, trialCount)
	for i := range b.trials {
		b.trials[i] = &Trial{
			session:  s,
			block:    b,
			settings: settings.NewChild(b.settings),
		}
	}
	s.blocks = append(s.blocks, b)
	return b
}

// AddTracker registers a tracker. Registered trackers are armed at
// every trial begin and snapshotted/persisted at every trial end.
func (s *Session) AddTracker(t *track.Tracker) {
	s.trackers = append(s.trackers, t)
}

// Begin initialises the session: validates the base path, fixes the
// experiment/participant/session folder identity, installs participant
// details and settings, zeroes the position counters, generates the
// session token, and fires the session-begin callbacks.
//
// A folder already existing for this exact identity is a warning, not
// an error; writes proceed and may overwrite.
//
// Unless disabled, the resolved settings and the participant details
// are snapshotted to storage as a side effect.
func (s *Session) Begin(experiment, ppid, basePath string, sessionNum int, details map[string]any, sess *settings.Settings) error {
	if s.initialised {
		return newInvalidTransition("session already begun", 0)
	}
	info, err := os.Stat(basePath)
	if err != nil || !info.IsDir() {
		return newPathNotFound(basePath)
	}

	if storage.SessionExists(basePath, experiment, ppid, sessionNum) {
		slog.Warn("session folder already exists, data may be overwritten",
			"experiment", experiment,
			"ppid", ppid,
			"session", sessionNum,
		)
	}

	s.experiment = experiment
	s.ppid = ppid
	s.basePath = basePath
	s.number = sessionNum
	if details == nil {
		details = make(map[string]any)
	}
	s.participantDetails = details
	// Supplied settings merge into the session's stable root node so
	// that blocks created before Begin keep a valid parent chain.
	if sess != nil {
		for k, v := range sess.Flatten() {
			s.settings.Set(k, v)
		}
	}
	s.token = s.tokenGen.Generate()
	s.startedAt = s.clock.Now()
	s.currentTrialNum = 0
	s.currentBlockNum = 0
	s.initialised = true
	s.worker.Start()

	slog.Info("session begun",
		"experiment", experiment,
		"ppid", ppid,
		"session", sessionNum,
		"token", s.token,
	)

	s.fireSessionBegin()

	if s.snapshotInfo {
		if _, err := s.SaveJSONObject(s.settings.Flatten(), "settings", storage.TypeSessionInfo); err != nil {
			return fmt.Errorf("snapshot settings: %w", err)
		}
		if _, err := s.SaveJSONObject(s.participantDetails, "participant_details", storage.TypeSessionInfo); err != nil {
			return fmt.Errorf("snapshot participant details: %w", err)
		}
	}

	return nil
}

// End finalises the session: any in-progress trial is force-ended, the
// aggregate results table is built and submitted, pre-end cleanup
// callbacks run, the write queue drains to durability, the session-end
// callbacks fire, and the session resets to a reusable inert state.
//
// End on an uninitialised session is an idempotent no-op: calling it
// twice performs the second call as a no-op with no duplicate results.
// Once End begins draining it cannot be aborted; every queued write
// runs to completion before End returns.
func (s *Session) End() error {
	if !s.initialised {
		return nil
	}

	if t, err := s.CurrentTrial(); err == nil && t.Status() == InProgress {
		slog.Warn("session ending with trial in progress, force-ending",
			"trial", t.Number(),
		)
		if err := t.End(); err != nil {
			return fmt.Errorf("force-end trial %d: %w", t.Number(), err)
		}
	}

	rows := make([]*table.Row, 0, s.TrialCount())
	for _, t := range s.Trials() {
		rows = append(rows, t.Result()) // nil for trials never begun
	}
	results := table.BuildResults(rows)
	for _, h := range s.handlers {
		if _, err := h.HandleTable(results, s.experiment, s.ppid, s.number, resultsName, storage.TypeTrialResults); err != nil {
			return fmt.Errorf("handler %s: submit results: %w", h.Name(), err)
		}
	}

	s.firePreSessionEnd()

	s.worker.DrainBlocking()

	slog.Info("session ended",
		"experiment", s.experiment,
		"ppid", s.ppid,
		"session", s.number,
		"trials", results.RowCount(),
	)

	s.fireSessionEnd()

	s.blocks = nil
	s.settings = settings.New()
	s.currentTrialNum = 0
	s.currentBlockNum = 0
	s.initialised = false
	return nil
}

// Trials returns every trial in the flattened block-order-then-
// trial-order sequence.
func (s *Session) Trials() []*Trial {
	var out []*Trial
	for _, b := range s.blocks {
		out = append(out, b.trials...)
	}
	return out
}

// TrialCount returns the total trial count across all blocks.
func (s *Session) TrialCount() int {
	n := 0
	for _, b := range s.blocks {
		n += len(b.trials)
	}
	return n
}

// BlockCount returns the number of blocks.
func (s *Session) BlockCount() int {
	return len(s.blocks)
}

// Block returns the 1-based num-th block, failing with NoSuchBlock for
// positions outside [1, BlockCount].
func (s *Session) Block(num int) (*Block, error) {
	if num < 1 || num > len(s.blocks) {
		return nil, newNoSuchBlock("block position outside session range")
	}
	return s.blocks[num-1], nil
}

// CurrentBlock returns the block of the current trial, failing with
// NoSuchBlock before any trial has begun.
func (s *Session) CurrentBlock() (*Block, error) {
	if s.currentBlockNum == 0 {
		return nil, newNoSuchBlock("no trial has begun")
	}
	return s.Block(s.currentBlockNum)
}

// trialAt returns the 1-based num-th trial of the flattened sequence.
func (s *Session) trialAt(num int) (*Trial, error) {
	if num < 1 || num > s.TrialCount() {
		return nil, newNoSuchTrial("trial position outside session range")
	}
	for _, b := range s.blocks {
		if num <= len(b.trials) {
			return b.trials[num-1], nil
		}
		num -= len(b.trials)
	}
	return nil, newNoSuchTrial("trial position outside session range")
}

// CurrentTrial returns the trial at the current position counter,
// failing with NoSuchTrial before any trial has begun.
func (s *Session) CurrentTrial() (*Trial, error) {
	if s.currentTrialNum == 0 {
		return nil, newNoSuchTrial("no trial has begun")
	}
	return s.trialAt(s.currentTrialNum)
}

// NextTrial returns the trial after the current position. At the end
// of the experiment this fails with NoSuchTrial, which callers treat
// as the normal end-of-run signal.
func (s *Session) NextTrial() (*Trial, error) {
	return s.trialAt(s.currentTrialNum + 1)
}

// PrevTrial returns the trial before the current position, failing
// with NoSuchTrial at or before the first trial.
func (s *Session) PrevTrial() (*Trial, error) {
	return s.trialAt(s.currentTrialNum - 1)
}

// FirstTrial returns the first trial of the flattened sequence.
func (s *Session) FirstTrial() (*Trial, error) {
	return s.trialAt(1)
}

// LastTrial returns the last trial of the flattened sequence.
func (s *Session) LastTrial() (*Trial, error) {
	return s.trialAt(s.TrialCount())
}

// BeginNextTrial begins the trial after the current position and
// returns it. Fails with NoSuchTrial past the last trial.
func (s *Session) BeginNextTrial() (*Trial, error) {
	t, err := s.NextTrial()
	if err != nil {
		return nil, err
	}
	if err := t.Begin(); err != nil {
		return nil, err
	}
	return t, nil
}

// EndCurrentTrial ends the trial at the current position.
func (s *Session) EndCurrentTrial() error {
	t, err := s.CurrentTrial()
	if err != nil {
		return err
	}
	return t.End()
}

// Tick drives one sampling tick: every armed tracker records one row
// stamped with seconds since the current trial began. A tick with no
// trial in progress is a no-op.
//
// A tracker width mismatch propagates immediately; the buffer would
// otherwise corrupt every downstream row.
func (s *Session) Tick() error {
	t, err := s.CurrentTrial()
	if err != nil || t.Status() != InProgress {
		return nil
	}
	elapsed := s.clock.Now().Sub(t.startTime).Seconds()
	for _, tr := range s.trackers {
		if err := tr.Tick(elapsed); err != nil {
			return fmt.Errorf("tracker %s: %w", tr.Name(), err)
		}
	}
	return nil
}

// SaveJSONObject persists a session-scope object through every handler
// in fan-out order and returns their locations.
func (s *Session) SaveJSONObject(obj map[string]any, name string, dt storage.DataType) ([]string, error) {
	if !s.initialised {
		return nil, newUninitialized("save object before session Begin")
	}
	locations := make([]string, 0, len(s.handlers))
	for _, h := range s.handlers {
		loc, err := h.HandleJSONObject(obj, s.experiment, s.ppid, s.number, name, dt)
		if err != nil {
			return nil, fmt.Errorf("handler %s: %w", h.Name(), err)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// SaveText persists session-scope text through every handler in
// fan-out order and returns their locations.
func (s *Session) SaveText(text, name string, dt storage.DataType) ([]string, error) {
	if !s.initialised {
		return nil, newUninitialized("save text before session Begin")
	}
	locations := make([]string, 0, len(s.handlers))
	for _, h := range s.handlers {
		loc, err := h.HandleText(text, s.experiment, s.ppid, s.number, name, dt)
		if err != nil {
			return nil, fmt.Errorf("handler %s: %w", h.Name(), err)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// SaveBytes persists session-scope bytes through every handler in
// fan-out order and returns their locations.
func (s *Session) SaveBytes(b []byte, name string, dt storage.DataType) ([]string, error) {
	if !s.initialised {
		return nil, newUninitialized("save bytes before session Begin")
	}
	locations := make([]string, 0, len(s.handlers))
	for _, h := range s.handlers {
		loc, err := h.HandleBytes(b, s.experiment, s.ppid, s.number, name, dt)
		if err != nil {
			return nil, fmt.Errorf("handler %s: %w", h.Name(), err)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// resultColumns declares the column set for a fresh result row: the
// fixed base columns, the declared settings-to-log keys, the declared
// custom headers, and one location column per tracker per handler.
func (s *Session) resultColumns() []string {
	cols := []string{
		"directory",
		"experiment",
		"ppid",
		"session_num",
		"trial_num",
		"block_num",
		"trial_num_in_block",
		"start_time",
		"end_time",
		"session_token",
	}
	cols = append(cols, s.settingsToLog...)
	cols = append(cols, s.customHeaders...)
	for _, tr := range s.trackers {
		for i := range s.handlers {
			cols = append(cols, trackerLocationColumn(tr.Name(), tr.Measurement(), i))
		}
	}
	return cols
}

// elapsed converts an absolute timestamp to seconds since session
// begin, the unit used for start/end time result columns.
func (s *Session) elapsed(at time.Time) float64 {
	return at.Sub(s.startedAt).Seconds()
}

// Experiment returns the experiment name fixed at Begin.
func (s *Session) Experiment() string { return s.experiment }

// PPID returns the participant identifier fixed at Begin.
func (s *Session) PPID() string { return s.ppid }

// Number returns the session number fixed at Begin.
func (s *Session) Number() int { return s.number }

// BasePath returns the storage base path fixed at Begin.
func (s *Session) BasePath() string { return s.basePath }

// Token returns the UUIDv7 session token generated at Begin.
func (s *Session) Token() string { return s.token }

// Path returns the session's storage directory under the naming
// convention basePath/experiment/ppid/S###.
func (s *Session) Path() string {
	return storage.SessionPath(s.basePath, s.experiment, s.ppid, s.number)
}

// Settings returns the session's root settings node.
func (s *Session) Settings() *settings.Settings { return s.settings }

// ParticipantDetails returns the participant-details mapping.
func (s *Session) ParticipantDetails() map[string]any { return s.participantDetails }

// Initialised reports whether Begin has completed and End has not.
func (s *Session) Initialised() bool { return s.initialised }

// CurrentTrialNum returns the 1-based current trial counter (0 before
// the first trial begins).
func (s *Session) CurrentTrialNum() int { return s.currentTrialNum }

// CurrentBlockNum returns the 1-based current block counter (0 before
// the first trial begins).
func (s *Session) CurrentBlockNum() int { return s.currentBlockNum }

// Trackers returns the registered trackers in registration order.
func (s *Session) Trackers() []*track.Tracker {
	out := make([]*track.Tracker, len(s.trackers))
	copy(out, s.trackers)
	return out
}
