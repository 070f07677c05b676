package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohort/internal/table"
	"github.com/roach88/cohort/internal/worker"
)

func newTestWorker(t *testing.T) *worker.Worker {
	t.Helper()
	w := worker.New()
	w.Start()
	t.Cleanup(w.Stop)
	return w
}

func TestSessionPath_NamingConvention(t *testing.T) {
	path := SessionPath("/data", "reach_task", "P01", 2)
	assert.Equal(t, filepath.Join("/data", "reach_task", "P01", "S002"), path)
}

func TestSessionFolderName_Widens(t *testing.T) {
	assert.Equal(t, "S001", SessionFolderName(1))
	assert.Equal(t, "S042", SessionFolderName(42))
	assert.Equal(t, "S1000", SessionFolderName(1000))
}

func TestSessionPath_NormalizesUnicodeIdentity(t *testing.T) {
	// "é" composed (U+00E9) vs decomposed (U+0065 U+0301) must map to
	// the same folder.
	composed := SessionPath("/data", "exp", "rené", 1)
	decomposed := SessionPath("/data", "exp", "rené", 1)
	assert.Equal(t, composed, decomposed)
}

func TestSessionExists(t *testing.T) {
	base := t.TempDir()

	assert.False(t, SessionExists(base, "exp", "P01", 1))

	require.NoError(t, os.MkdirAll(SessionPath(base, "exp", "P01", 1), 0o755))
	assert.True(t, SessionExists(base, "exp", "P01", 1))
	assert.False(t, SessionExists(base, "exp", "P01", 2))
}

func TestFileHandler_HandleTable(t *testing.T) {
	base := t.TempDir()
	w := newTestWorker(t)
	h := NewFileHandler(base, w)

	tab := table.NewTable("time", "x")
	require.NoError(t, tab.AddCompleteRow([]any{0.0, 1.0}))

	loc, err := h.HandleTable(tab, "exp", "P01", 1, "hand_movement_T001", TypeTrackers)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "exp", "P01", "S001", "hand_movement_T001.csv"), loc)

	w.DrainBlocking()

	body, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "time,x\n0,1\n", string(body))
}

func TestFileHandler_TableFrozenAtSubmission(t *testing.T) {
	base := t.TempDir()
	w := newTestWorker(t)
	h := NewFileHandler(base, w)

	tab := table.NewTable("a")
	require.NoError(t, tab.AddCompleteRow([]any{1}))

	loc, err := h.HandleTable(tab, "exp", "P01", 1, "frozen", TypeOther)
	require.NoError(t, err)

	// Mutation after hand-off must not leak into the written file.
	require.NoError(t, tab.AddCompleteRow([]any{2}))
	w.DrainBlocking()

	body, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n", string(body))
}

func TestFileHandler_HandleJSONObject(t *testing.T) {
	base := t.TempDir()
	w := newTestWorker(t)
	h := NewFileHandler(base, w)

	loc, err := h.HandleJSONObject(map[string]any{"age": 33}, "exp", "P01", 1, "participant_details", TypeSessionInfo)
	require.NoError(t, err)
	assert.Equal(t, ".json", filepath.Ext(loc))

	w.DrainBlocking()

	body, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"age": 33}`, string(body))
}

func TestFileHandler_HandleTextAndBytes(t *testing.T) {
	base := t.TempDir()
	w := newTestWorker(t)
	h := NewFileHandler(base, w)

	txtLoc, err := h.HandleText("notes", "exp", "P01", 1, "log", TypeOther)
	require.NoError(t, err)

	raw := []byte{0x01, 0x02}
	binLoc, err := h.HandleBytes(raw, "exp", "P01", 1, "payload.bin", TypeOther)
	require.NoError(t, err)

	raw[0] = 0xFF // defensive copy: must not affect the written bytes
	w.DrainBlocking()

	body, err := os.ReadFile(txtLoc)
	require.NoError(t, err)
	assert.Equal(t, "notes", string(body))

	body, err = os.ReadFile(binLoc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, body)
}

func TestSQLiteHandler_RoundTrip(t *testing.T) {
	w := newTestWorker(t)
	dbPath := filepath.Join(t.TempDir(), "artifacts.db")

	h, err := OpenSQLiteHandler(dbPath, w)
	require.NoError(t, err)
	defer h.Close()

	tab := table.NewTable("time", "x")
	require.NoError(t, tab.AddCompleteRow([]any{0.5, 3.0}))

	loc, err := h.HandleTable(tab, "exp", "P01", 1, "hand_movement_T001", TypeTrackers)
	require.NoError(t, err)
	assert.Equal(t, "sqlite:"+dbPath+"#exp/P01/S001/hand_movement_T001", loc)

	w.DrainBlocking()

	body, contentType, err := h.ReadArtifact(context.Background(), "exp", "P01", 1, "hand_movement_T001")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Equal(t, "time,x\n0.5,3\n", string(body))
}

func TestSQLiteHandler_OverwriteSemantics(t *testing.T) {
	w := newTestWorker(t)
	dbPath := filepath.Join(t.TempDir(), "artifacts.db")

	h, err := OpenSQLiteHandler(dbPath, w)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.HandleText("first", "exp", "P01", 1, "log", TypeOther)
	require.NoError(t, err)
	_, err = h.HandleText("second", "exp", "P01", 1, "log", TypeOther)
	require.NoError(t, err)

	w.DrainBlocking()

	body, _, err := h.ReadArtifact(context.Background(), "exp", "P01", 1, "log")
	require.NoError(t, err)
	assert.Equal(t, "second", string(body))
}

func TestSQLiteHandler_ReadMissingArtifact(t *testing.T) {
	w := newTestWorker(t)
	dbPath := filepath.Join(t.TempDir(), "artifacts.db")

	h, err := OpenSQLiteHandler(dbPath, w)
	require.NoError(t, err)
	defer h.Close()

	_, _, err = h.ReadArtifact(context.Background(), "exp", "P01", 1, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
