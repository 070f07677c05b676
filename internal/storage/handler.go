// Package storage defines the pluggable data-handler contract and the
// built-in sinks: a file-system handler and a SQLite artifact handler.
//
// A handler is given a payload plus the session identity and returns a
// stable location string. Locations are pure functions of the naming
// convention, so a handler can return them synchronously while the
// physical write runs on the persistence worker. The handler is the
// sole authority on actual durability and byte format.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/cohort/internal/table"
)

// DataType categorizes a payload for routing and naming.
type DataType string

const (
	// TypeTrialResults is the aggregate per-session results table.
	TypeTrialResults DataType = "trial_results"
	// TypeTrackers is per-trial tracker data.
	TypeTrackers DataType = "trackers"
	// TypeSessionInfo is settings and participant-details snapshots.
	TypeSessionInfo DataType = "session_info"
	// TypeOther is any payload saved outside the built-in categories.
	TypeOther DataType = "other"
)

// Handler is a pluggable persistence sink.
//
// Every method returns the payload's location immediately and is
// responsible for scheduling the physical write itself. Methods are
// called in fan-out order from the foreground control goroutine; the
// writes they schedule must be safe to run on the worker goroutine.
//
// A payload handed to a handler is frozen: the handler (or the caller)
// takes a defensive copy at submission time, and the foreground thread
// never mutates it afterwards.
type Handler interface {
	// Name identifies the handler in logs.
	Name() string

	// HandleTable persists a data table (CSV contract: header line
	// first, comma-delimited, commas in values replaced).
	HandleTable(t *table.Table, experiment, ppid string, sessionNum int, name string, dt DataType) (string, error)

	// HandleJSONObject persists a string-keyed mapping as a .json
	// document named after the logical object name.
	HandleJSONObject(obj map[string]any, experiment, ppid string, sessionNum int, name string, dt DataType) (string, error)

	// HandleText persists plain text.
	HandleText(text string, experiment, ppid string, sessionNum int, name string, dt DataType) (string, error)

	// HandleBytes persists a raw byte payload.
	HandleBytes(b []byte, experiment, ppid string, sessionNum int, name string, dt DataType) (string, error)
}

// SessionFolderName formats a session number as S001, S002, ...
// Numbers past 999 widen naturally.
func SessionFolderName(sessionNum int) string {
	return fmt.Sprintf("S%03d", sessionNum)
}

// SessionPath returns the session's storage directory under the naming
// convention basePath/experiment/ppid/S###.
//
// Identity strings are NFC-normalized first so that visually identical
// unicode names (composed vs decomposed) map to one folder.
func SessionPath(basePath, experiment, ppid string, sessionNum int) string {
	return filepath.Join(
		basePath,
		norm.NFC.String(experiment),
		norm.NFC.String(ppid),
		SessionFolderName(sessionNum),
	)
}

// SessionExists reports whether a folder for this exact session
// identity already exists. Derived purely from the naming convention;
// it says nothing about the folder's contents.
func SessionExists(basePath, experiment, ppid string, sessionNum int) bool {
	info, err := os.Stat(SessionPath(basePath, experiment, ppid, sessionNum))
	return err == nil && info.IsDir()
}
