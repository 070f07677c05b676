package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/cohort/internal/table"
	"github.com/roach88/cohort/internal/worker"
)

// FileHandler persists payloads as files under the session directory
// naming convention. Physical writes run on the persistence worker in
// submission order; the returned location is the target path.
type FileHandler struct {
	basePath string
	worker   *worker.Worker
}

// NewFileHandler creates a file handler rooted at basePath, scheduling
// its writes on w.
func NewFileHandler(basePath string, w *worker.Worker) *FileHandler {
	return &FileHandler{basePath: basePath, worker: w}
}

// Name implements Handler.
func (h *FileHandler) Name() string { return "file" }

// HandleTable implements Handler. The table is cloned at submission
// time; later foreground mutations do not affect the written file.
func (h *FileHandler) HandleTable(t *table.Table, experiment, ppid string, sessionNum int, name string, dt DataType) (string, error) {
	path := h.payloadPath(experiment, ppid, sessionNum, name, ".csv")
	frozen := t.Clone()
	h.submit(name, path, func() ([]byte, error) {
		return []byte(frozen.CSV()), nil
	})
	return path, nil
}

// HandleJSONObject implements Handler. The object is serialized at
// submission time, which doubles as the frozen snapshot.
func (h *FileHandler) HandleJSONObject(obj map[string]any, experiment, ppid string, sessionNum int, name string, dt DataType) (string, error) {
	path := h.payloadPath(experiment, ppid, sessionNum, name, ".json")
	body, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	h.submit(name, path, func() ([]byte, error) {
		return body, nil
	})
	return path, nil
}

// HandleText implements Handler.
func (h *FileHandler) HandleText(text string, experiment, ppid string, sessionNum int, name string, dt DataType) (string, error) {
	path := h.payloadPath(experiment, ppid, sessionNum, name, ".txt")
	h.submit(name, path, func() ([]byte, error) {
		return []byte(text), nil
	})
	return path, nil
}

// HandleBytes implements Handler. The slice is copied at submission
// time.
func (h *FileHandler) HandleBytes(b []byte, experiment, ppid string, sessionNum int, name string, dt DataType) (string, error) {
	path := h.payloadPath(experiment, ppid, sessionNum, name, "")
	frozen := make([]byte, len(b))
	copy(frozen, b)
	h.submit(name, path, func() ([]byte, error) {
		return frozen, nil
	})
	return path, nil
}

func (h *FileHandler) payloadPath(experiment, ppid string, sessionNum int, name, ext string) string {
	return filepath.Join(SessionPath(h.basePath, experiment, ppid, sessionNum), name+ext)
}

// submit queues the physical write. Existing files are overwritten;
// re-running a session into the same folder is a warning upstream, not
// an error here.
func (h *FileHandler) submit(name, path string, body func() ([]byte, error)) {
	h.worker.Submit(worker.Job{
		Name: fmt.Sprintf("file:%s", name),
		Run: func() error {
			b, err := body()
			if err != nil {
				return fmt.Errorf("prepare %s: %w", path, err)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create directory for %s: %w", path, err)
			}
			if err := os.WriteFile(path, b, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			return nil
		},
	})
}
