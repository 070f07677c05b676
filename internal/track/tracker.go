// Package track implements per-entity continuous sampling. A Tracker
// is armed at trial begin, appends one fixed-width row per sampling
// tick, and is snapshotted at trial end for persistence.
package track

import (
	"fmt"

	"github.com/roach88/cohort/internal/table"
)

// timeColumn is the first column of every tracker table.
const timeColumn = "time"

// Sampler produces one value vector per sampling tick. How the values
// are obtained (engine frame state, hardware polling, simulation) is
// the implementation's concern; the Tracker only requires that the
// vector width matches its declared custom header on every tick.
type Sampler interface {
	Sample() []any
}

// SamplerFunc adapts a plain function to the Sampler interface.
type SamplerFunc func() []any

// Sample calls f.
func (f SamplerFunc) Sample() []any { return f() }

// Tracker buffers time-stamped sample rows for one tracked entity
// while recording is active.
//
// Row width is len(customHeader)+1 (the time column plus one value per
// custom column). A sampler producing the wrong width is a fatal
// configuration error surfaced on the tick that detects it; a
// malformed buffer would corrupt every downstream row.
//
// StartRecording clears the buffer. Trackers do not span trials:
// callers must snapshot before the next StartRecording.
//
// Thread-safety: all methods run on the foreground control goroutine.
// Snapshot returns a frozen copy safe to hand to a background writer.
type Tracker struct {
	name         string
	measurement  string
	customHeader []string
	sampler      Sampler
	recording    bool
	rows         [][]any
}

// New creates a tracker identified by name and measurement kind, with
// the fixed custom column set sampled by sampler.
func New(name, measurement string, customHeader []string, sampler Sampler) *Tracker {
	header := make([]string, len(customHeader))
	copy(header, customHeader)
	return &Tracker{
		name:         name,
		measurement:  measurement,
		customHeader: header,
		sampler:      sampler,
	}
}

// Name returns the tracked entity's name.
func (t *Tracker) Name() string { return t.name }

// Measurement returns the measurement kind (e.g. "movement").
func (t *Tracker) Measurement() string { return t.measurement }

// Recording reports whether the tracker is currently armed.
func (t *Tracker) Recording() bool { return t.recording }

// RowCount returns the number of buffered rows.
func (t *Tracker) RowCount() int { return len(t.rows) }

// Header returns the full table header: time plus the custom columns.
func (t *Tracker) Header() []string {
	header := make([]string, 0, len(t.customHeader)+1)
	header = append(header, timeColumn)
	header = append(header, t.customHeader...)
	return header
}

// StartRecording clears the buffer and arms the tracker.
// Any rows from a prior trial that were not snapshotted are discarded.
func (t *Tracker) StartRecording() {
	t.rows = t.rows[:0]
	t.recording = true
}

// PauseRecording disarms the tracker without clearing the buffer.
func (t *Tracker) PauseRecording() {
	t.recording = false
}

// StopRecording disarms the tracker. The buffer is retained until the
// next StartRecording so it can still be snapshotted.
func (t *Tracker) StopRecording() {
	t.recording = false
}

// Tick records one sample row at the given timestamp (seconds since
// trial start). A tick while disarmed is a no-op.
//
// Returns a SchemaViolationError if the sampler's vector width does
// not match the declared custom header. The row is not recorded.
func (t *Tracker) Tick(timestamp float64) error {
	if !t.recording {
		return nil
	}
	values := t.sampler.Sample()
	if len(values) != len(t.customHeader) {
		return &table.SchemaViolationError{
			Want: len(t.customHeader),
			Got:  len(values),
			Message: fmt.Sprintf(
				"tracker %q sampler width does not match custom header", t.name),
		}
	}
	row := make([]any, 0, len(values)+1)
	row = append(row, timestamp)
	row = append(row, values...)
	t.rows = append(t.rows, row)
	return nil
}

// Snapshot freezes the buffered rows into a table. The result is a
// defensive copy: later ticks or a StartRecording do not affect it.
func (t *Tracker) Snapshot() *table.Table {
	tab := table.NewTable(t.Header()...)
	for _, row := range t.rows {
		// Widths were validated at tick time.
		if err := tab.AddCompleteRow(row); err != nil {
			panic(fmt.Sprintf("track: buffered row width invalid: %v", err))
		}
	}
	return tab
}
