package uploads

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"docvault-backend/internal/shared/telemetry"
)

// Stager spools request bodies to local disk so the asynchronous path can
// stream them to the object store after the HTTP request has returned.
// Staged files are keyed by task ID and removed once the task reaches a
// terminal state.
type Stager struct {
	Dir string
}

// Stage writes the reader to the staging area and returns the byte count.
func (s *Stager) Stage(taskID string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}

	path := s.path(taskID)
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create staging file: %w", err)
	}

	written, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("stage upload: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("finalize staging file: %w", err)
	}
	return written, nil
}

// Open returns a reader over the staged file for the task.
func (s *Stager) Open(taskID string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(taskID))
	if err != nil {
		return nil, fmt.Errorf("open staged upload: %w", err)
	}
	return f, nil
}

// Size returns the staged file's byte count.
func (s *Stager) Size(taskID string) (int64, error) {
	info, err := os.Stat(s.path(taskID))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes the staged file. Missing files are not an error.
func (s *Stager) Remove(taskID string) {
	if err := os.Remove(s.path(taskID)); err != nil && !os.IsNotExist(err) {
		telemetry.Warn("uploads.stage_remove_failed", map[string]any{
			"task_id": taskID,
			"error":   err.Error(),
		})
	}
}

func (s *Stager) path(taskID string) string {
	return filepath.Join(s.Dir, taskID+".upload")
}
