package uploads

import (
	"context"
	"time"
)

// Repo persists upload tasks.
type Repo interface {
	// Create inserts a pending task. At most one non-terminal task may
	// exist per document; a second insert returns ErrActiveTaskExists.
	Create(ctx context.Context, task UploadTask) error
	GetByID(ctx context.Context, taskID string) (UploadTask, error)
	// LatestByDocument returns the most recently created task for the
	// document.
	LatestByDocument(ctx context.Context, documentID string) (UploadTask, error)
	// Transition moves the task from one status to another atomically.
	// Returns ErrConflict when the task is no longer in the from status.
	Transition(ctx context.Context, taskID string, from, to Status, errorMessage string, at time.Time) error
	// UpdateProgress raises the progress percentage. Progress never goes
	// backwards; a lower value is ignored.
	UpdateProgress(ctx context.Context, taskID string, progress int, at time.Time) error
	// ListStuck returns non-terminal tasks untouched since the cutoff.
	ListStuck(ctx context.Context, cutoff time.Time) ([]UploadTask, error)
}
