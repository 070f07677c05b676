package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/cohort/internal/table"
	"github.com/roach88/cohort/internal/worker"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteHandler persists payloads as rows in a SQLite artifact store.
// Useful when downstream analysis wants one queryable file per study
// rather than a folder tree.
//
// Locations have the form sqlite:<db-path>#<experiment>/<ppid>/S###/<name>
// and are computed from the naming convention alone, so they are stable
// before the asynchronous insert lands.
type SQLiteHandler struct {
	path   string
	db     *sql.DB
	worker *worker.Worker
}

// OpenSQLiteHandler creates or opens the artifact database at path and
// schedules its writes on w.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - a single connection, since SQLite allows one writer at a time
//
// Safe to call for an existing database; the schema is idempotent.
func OpenSQLiteHandler(path string, w *worker.Worker) (*SQLiteHandler, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open artifact database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to artifact database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply artifact schema: %w", err)
	}

	return &SQLiteHandler{path: path, db: db, worker: w}, nil
}

// Close closes the database connection. Call only after the worker has
// drained; closing with writes still queued fails them.
func (h *SQLiteHandler) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Name implements Handler.
func (h *SQLiteHandler) Name() string { return "sqlite" }

// HandleTable implements Handler.
func (h *SQLiteHandler) HandleTable(t *table.Table, experiment, ppid string, sessionNum int, name string, dt DataType) (string, error) {
	frozen := t.Clone()
	return h.store(experiment, ppid, sessionNum, name, dt, "text/csv", func() ([]byte, error) {
		return []byte(frozen.CSV()), nil
	}), nil
}

// HandleJSONObject implements Handler.
func (h *SQLiteHandler) HandleJSONObject(obj map[string]any, experiment, ppid string, sessionNum int, name string, dt DataType) (string, error) {
	body, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	return h.store(experiment, ppid, sessionNum, name, dt, "application/json", func() ([]byte, error) {
		return body, nil
	}), nil
}

// HandleText implements Handler.
func (h *SQLiteHandler) HandleText(text string, experiment, ppid string, sessionNum int, name string, dt DataType) (string, error) {
	return h.store(experiment, ppid, sessionNum, name, dt, "text/plain", func() ([]byte, error) {
		return []byte(text), nil
	}), nil
}

// HandleBytes implements Handler.
func (h *SQLiteHandler) HandleBytes(b []byte, experiment, ppid string, sessionNum int, name string, dt DataType) (string, error) {
	frozen := make([]byte, len(b))
	copy(frozen, b)
	return h.store(experiment, ppid, sessionNum, name, dt, "application/octet-stream", func() ([]byte, error) {
		return frozen, nil
	}), nil
}

// Location returns the stable artifact reference for a payload.
func (h *SQLiteHandler) Location(experiment, ppid string, sessionNum int, name string) string {
	return fmt.Sprintf("sqlite:%s#%s/%s/%s/%s",
		h.path, experiment, ppid, SessionFolderName(sessionNum), name)
}

// store queues the upsert and returns the artifact location.
// The UNIQUE constraint plus ON CONFLICT gives overwrite semantics for
// re-run sessions, matching the file handler.
func (h *SQLiteHandler) store(experiment, ppid string, sessionNum int, name string, dt DataType, contentType string, body func() ([]byte, error)) string {
	location := h.Location(experiment, ppid, sessionNum, name)
	id := uuid.Must(uuid.NewV7()).String()
	h.worker.Submit(worker.Job{
		Name: fmt.Sprintf("sqlite:%s", name),
		Run: func() error {
			b, err := body()
			if err != nil {
				return fmt.Errorf("prepare artifact %s: %w", location, err)
			}
			_, err = h.db.ExecContext(context.Background(), `
				INSERT INTO artifacts
				(id, experiment, ppid, session_num, name, data_type, content_type, body)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(experiment, ppid, session_num, name) DO UPDATE SET
					id = excluded.id,
					data_type = excluded.data_type,
					content_type = excluded.content_type,
					body = excluded.body
			`,
				id, experiment, ppid, sessionNum, name, string(dt), contentType, b,
			)
			if err != nil {
				return fmt.Errorf("write artifact %s: %w", location, err)
			}
			return nil
		},
	})
	return location
}

// ReadArtifact fetches a stored payload body by session identity and
// name. Returns sql.ErrNoRows if the artifact does not exist.
func (h *SQLiteHandler) ReadArtifact(ctx context.Context, experiment, ppid string, sessionNum int, name string) ([]byte, string, error) {
	var body []byte
	var contentType string
	err := h.db.QueryRowContext(ctx, `
		SELECT body, content_type FROM artifacts
		WHERE experiment = ? AND ppid = ? AND session_num = ? AND name = ?
	`, experiment, ppid, sessionNum, name).Scan(&body, &contentType)
	if err != nil {
		return nil, "", fmt.Errorf("read artifact %s: %w", name, err)
	}
	return body, contentType, nil
}
