package uploads

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu    sync.RWMutex
	tasks map[string]UploadTask
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{tasks: make(map[string]UploadTask)}
}

func (r *MemoryRepo) Create(ctx context.Context, task UploadTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tasks {
		if existing.DocumentID == task.DocumentID && !existing.Status.Terminal() {
			return ErrActiveTaskExists
		}
	}
	r.tasks[task.ID] = task
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, taskID string) (UploadTask, error) {
	if err := ctx.Err(); err != nil {
		return UploadTask{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return UploadTask{}, ErrNotFound
	}
	return task, nil
}

func (r *MemoryRepo) LatestByDocument(ctx context.Context, documentID string) (UploadTask, error) {
	if err := ctx.Err(); err != nil {
		return UploadTask{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []UploadTask
	for _, task := range r.tasks {
		if task.DocumentID == documentID {
			matched = append(matched, task)
		}
	}
	if len(matched) == 0 {
		return UploadTask{}, ErrNotFound
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched[0], nil
}

func (r *MemoryRepo) Transition(ctx context.Context, taskID string, from, to Status, errorMessage string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if task.Status != from {
		return ErrConflict
	}
	task.Status = to
	task.ErrorMessage = errorMessage
	task.UpdatedAt = at
	r.tasks[taskID] = task
	return nil
}

func (r *MemoryRepo) UpdateProgress(ctx context.Context, taskID string, progress int, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if task.Status.Terminal() {
		return nil
	}
	if progress > task.Progress {
		task.Progress = progress
	}
	task.UpdatedAt = at
	r.tasks[taskID] = task
	return nil
}

func (r *MemoryRepo) ListStuck(ctx context.Context, cutoff time.Time) ([]UploadTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []UploadTask
	for _, task := range r.tasks {
		if !task.Status.Terminal() && task.UpdatedAt.Before(cutoff) {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
