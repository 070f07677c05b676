package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/cohort/internal/settings"
	"github.com/roach88/cohort/internal/storage"
	"github.com/roach88/cohort/internal/table"
)

// Status is a trial's lifecycle state. Transitions run strictly
// NotDone → InProgress → Done; Done is terminal.
type Status int

const (
	// NotDone is the initial state of every trial.
	NotDone Status = iota
	// InProgress means Begin has run and End has not.
	InProgress
	// Done is terminal; a Done trial cannot be re-begun.
	Done
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case NotDone:
		return "not done"
	case InProgress:
		return "in progress"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Trial is one measured attempt, the atomic unit of the experiment.
// Trials belong to exactly one block and are created only when the
// block is constructed.
type Trial struct {
	session  *Session
	block    *Block
	status   Status
	settings *settings.Settings
	result   *table.Row

	startTime time.Time
	endTime   time.Time
}

// Number returns the trial's 1-based position in the flattened,
// block-order-then-trial-order sequence across all blocks. Derived,
// never stored.
func (t *Trial) Number() int {
	n := 0
	for _, b := range t.session.blocks {
		for _, tr := range b.trials {
			n++
			if tr == t {
				return n
			}
		}
	}
	return 0 // detached: session has been reset
}

// NumberInBlock returns the trial's 1-based position within its block.
func (t *Trial) NumberInBlock() int {
	for i, tr := range t.block.trials {
		if tr == t {
			return i + 1
		}
	}
	return 0
}

// Block returns the owning block.
func (t *Trial) Block() *Block {
	return t.block
}

// Session returns the owning session.
func (t *Trial) Session() *Session {
	return t.session
}

// Status returns the trial's lifecycle state.
func (t *Trial) Status() Status {
	return t.status
}

// Settings returns the trial's settings node, a child of the block's
// node: trial values shadow block values shadow session values.
func (t *Trial) Settings() *settings.Settings {
	return t.settings
}

// Result returns the trial's result row, or nil if the trial has not
// begun.
func (t *Trial) Result() *table.Row {
	return t.result
}

// StartTime returns the trial's begin timestamp (zero until begun).
func (t *Trial) StartTime() time.Time { return t.startTime }

// EndTime returns the trial's end timestamp (zero until ended).
func (t *Trial) EndTime() time.Time { return t.endTime }

// Begin starts the trial.
//
// The session's current counters move to this trial's position, a
// fresh result row is seeded with the base columns, every registered
// tracker is cleared and armed, and the trial-begin callbacks fire.
//
// Begin on an InProgress or Done trial is rejected with
// InvalidTransition: re-entering a finished trial never silently
// restarts it.
func (t *Trial) Begin() error {
	if !t.session.initialised {
		return newUninitialized("trial begun before session Begin")
	}
	switch t.status {
	case InProgress:
		return newInvalidTransition("trial already in progress", t.Number())
	case Done:
		return newInvalidTransition("trial already done", t.Number())
	}

	num := t.Number()
	t.session.currentTrialNum = num
	t.session.currentBlockNum = t.block.Number()
	t.startTime = t.session.clock.Now()
	t.status = InProgress

	t.result = table.NewRow(t.session.resultColumns(), t.session.adHoc)
	t.seedBaseColumns(num)

	for _, tr := range t.session.trackers {
		tr.StartRecording()
	}

	slog.Debug("trial begun",
		"trial", num,
		"block", t.session.currentBlockNum,
		"experiment", t.session.experiment,
	)

	t.session.fireTrialBegin(t)
	return nil
}

// seedBaseColumns fills the fixed identity columns. The column set was
// declared by resultColumns, so Set cannot fail here.
func (t *Trial) seedBaseColumns(num int) {
	seed := func(col string, v any) {
		if err := t.result.Set(col, v); err != nil {
			panic(fmt.Sprintf("session: base column %q undeclared: %v", col, err))
		}
	}
	seed("directory", t.session.Path())
	seed("experiment", t.session.experiment)
	seed("ppid", t.session.ppid)
	seed("session_num", t.session.number)
	seed("trial_num", num)
	seed("block_num", t.block.Number())
	seed("trial_num_in_block", t.NumberInBlock())
	seed("start_time", t.session.elapsed(t.startTime))
	seed("session_token", t.session.token)
}

// End finishes the trial.
//
// The end timestamp is recorded, every tracker is stopped, snapshotted
// and routed through the data-handler fan-out (one location column per
// handler), the declared settings-to-log values are copied into the
// result row, and the trial-end callbacks fire.
//
// End on a trial that is not InProgress is rejected with
// InvalidTransition.
func (t *Trial) End() error {
	if t.status != InProgress {
		return newInvalidTransition(
			fmt.Sprintf("trial end requires in-progress trial, status is %s", t.status),
			t.Number(),
		)
	}

	t.endTime = t.session.clock.Now()
	if err := t.result.Set("end_time", t.session.elapsed(t.endTime)); err != nil {
		return fmt.Errorf("record end time: %w", err)
	}

	for _, tr := range t.session.trackers {
		tr.StopRecording()
		name := fmt.Sprintf("%s_%s_T%03d", tr.Name(), tr.Measurement(), t.Number())
		locations, err := t.fanOutTable(tr.Snapshot(), name, storage.TypeTrackers)
		if err != nil {
			return fmt.Errorf("save tracker %s: %w", tr.Name(), err)
		}
		for i, loc := range locations {
			col := trackerLocationColumn(tr.Name(), tr.Measurement(), i)
			if err := t.result.Set(col, loc); err != nil {
				return fmt.Errorf("record tracker location: %w", err)
			}
		}
	}

	t.logDeclaredSettings()

	t.status = Done
	slog.Debug("trial ended", "trial", t.Number(), "block", t.block.Number())
	t.session.fireTrialEnd(t)
	return nil
}

// logDeclaredSettings copies each settings-to-log value into the result
// row via the trial's override chain. A key absent from the whole chain
// leaves an empty field and logs a warning; a missing optional setting
// is not worth aborting a completed trial for.
func (t *Trial) logDeclaredSettings() {
	for _, key := range t.session.settingsToLog {
		v, err := t.settings.Get(key)
		if err != nil {
			slog.Warn("settings-to-log key unresolved",
				"key", key,
				"trial", t.Number(),
			)
			continue
		}
		if err := t.result.Set(key, v); err != nil {
			// Declared in resultColumns, so this cannot happen.
			panic(fmt.Sprintf("session: settings-to-log column %q undeclared: %v", key, err))
		}
	}
}

// SaveTable routes a data table through the handler fan-out and records
// one location column per handler on the result row.
func (t *Trial) SaveTable(tab *table.Table, name string, dt storage.DataType) ([]string, error) {
	if err := t.requireBegun("save table"); err != nil {
		return nil, err
	}
	locations, err := t.fanOutTable(tab, name, dt)
	if err != nil {
		return nil, err
	}
	return locations, t.recordLocations(name, locations)
}

// SaveJSONObject routes a string-keyed mapping through the handler
// fan-out and records one location column per handler.
func (t *Trial) SaveJSONObject(obj map[string]any, name string, dt storage.DataType) ([]string, error) {
	if err := t.requireBegun("save object"); err != nil {
		return nil, err
	}
	locations := make([]string, 0, len(t.session.handlers))
	for _, h := range t.session.handlers {
		loc, err := h.HandleJSONObject(obj, t.session.experiment, t.session.ppid, t.session.number, name, dt)
		if err != nil {
			return nil, fmt.Errorf("handler %s: %w", h.Name(), err)
		}
		locations = append(locations, loc)
	}
	return locations, t.recordLocations(name, locations)
}

// SaveText routes text through the handler fan-out and records one
// location column per handler.
func (t *Trial) SaveText(text string, name string, dt storage.DataType) ([]string, error) {
	if err := t.requireBegun("save text"); err != nil {
		return nil, err
	}
	locations := make([]string, 0, len(t.session.handlers))
	for _, h := range t.session.handlers {
		loc, err := h.HandleText(text, t.session.experiment, t.session.ppid, t.session.number, name, dt)
		if err != nil {
			return nil, fmt.Errorf("handler %s: %w", h.Name(), err)
		}
		locations = append(locations, loc)
	}
	return locations, t.recordLocations(name, locations)
}

// SaveBytes routes raw bytes through the handler fan-out and records
// one location column per handler.
func (t *Trial) SaveBytes(b []byte, name string, dt storage.DataType) ([]string, error) {
	if err := t.requireBegun("save bytes"); err != nil {
		return nil, err
	}
	locations := make([]string, 0, len(t.session.handlers))
	for _, h := range t.session.handlers {
		loc, err := h.HandleBytes(b, t.session.experiment, t.session.ppid, t.session.number, name, dt)
		if err != nil {
			return nil, fmt.Errorf("handler %s: %w", h.Name(), err)
		}
		locations = append(locations, loc)
	}
	return locations, t.recordLocations(name, locations)
}

func (t *Trial) requireBegun(op string) error {
	if !t.session.initialised {
		return newUninitialized(op + " before session Begin")
	}
	if t.result == nil {
		return newInvalidTransition(op+" on a trial that has not begun", t.Number())
	}
	return nil
}

// fanOutTable calls every active handler in fixed order and collects
// the returned locations. Handler failures propagate; the core never
// retries on a handler's behalf.
func (t *Trial) fanOutTable(tab *table.Table, name string, dt storage.DataType) ([]string, error) {
	locations := make([]string, 0, len(t.session.handlers))
	for _, h := range t.session.handlers {
		loc, err := h.HandleTable(tab, t.session.experiment, t.session.ppid, t.session.number, name, dt)
		if err != nil {
			return nil, fmt.Errorf("handler %s: %w", h.Name(), err)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// recordLocations writes one auditable column per handler index so a
// single save fanned out to N backends leaves N references in the
// final results table.
func (t *Trial) recordLocations(name string, locations []string) error {
	for i, loc := range locations {
		if err := t.result.Set(locationColumn(name, i), loc); err != nil {
			return err
		}
	}
	return nil
}

// locationColumn names the result column for payload name at fan-out
// index i.
func locationColumn(name string, i int) string {
	return fmt.Sprintf("%s_location_%d", name, i)
}

// trackerLocationColumn names the result column for a tracker's data
// at fan-out index i. Tracker columns are keyed by identity rather
// than filename so the column set is stable across trials.
func trackerLocationColumn(name, measurement string, i int) string {
	return fmt.Sprintf("%s_%s_location_%d", name, measurement, i)
}
