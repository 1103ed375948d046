package uploads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"docvault-backend/internal/documents"
	"docvault-backend/internal/notify"
	"docvault-backend/internal/queue"
	"docvault-backend/internal/shared/metrics"
	"docvault-backend/internal/shared/storage/object"
	"docvault-backend/internal/shared/telemetry"
	"docvault-backend/internal/shared/util"
	"docvault-backend/internal/users"
)

const (
	defaultSyncThreshold = 5 << 20
	progressStepPercent  = 5
	storagePrefix        = "documents"
)

// Orchestrator drives document uploads through the task state machine.
// Small files run the whole pipeline inside the request; larger ones are
// staged to disk and handed to the queue. Both paths execute the same
// sequence of states.
type Orchestrator struct {
	Tasks         Repo
	Docs          documents.Repo
	Users         users.Repo
	Store         object.ObjectStore
	Stage         *Stager
	Hub           *notify.Hub
	Queue         queue.Client
	SyncThreshold int64
	MaxBytes      int64
	Now           func() time.Time
}

// SubmitInput describes one upload request.
type SubmitInput struct {
	OwnerID     string
	Title       string
	Description string
	FileName    string
	ContentType string
	SizeHint    int64
	Body        io.Reader
	RequestID   string
}

// SubmitResult reports the created document and task. Async is true when
// the transfer was queued instead of executed inline.
type SubmitResult struct {
	Document documents.Document
	Task     UploadTask
	Async    bool
}

// Submit validates the request, creates the document and its pending task,
// stages the body, and either processes it inline or enqueues it.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	fileName, err := util.SanitizeFileName(in.FileName)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: invalid file name", ErrInvalidInput)
	}
	if in.SizeHint < 0 {
		return SubmitResult{}, fmt.Errorf("%w: negative size", ErrInvalidInput)
	}
	if o.MaxBytes > 0 && in.SizeHint > o.MaxBytes {
		return SubmitResult{}, ErrTooLarge
	}

	exists, err := o.Users.Exists(ctx, in.OwnerID)
	if err != nil {
		return SubmitResult{}, err
	}
	if !exists {
		return SubmitResult{}, ErrUnknownOwner
	}

	now := o.now()
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = fileName
	}

	doc := documents.Document{
		ID:          uuid.NewString(),
		OwnerID:     in.OwnerID,
		Title:       title,
		Description: in.Description,
		Status:      documents.StatusDraft,
		FileName:    fileName,
		ContentType: in.ContentType,
		SizeBytes:   in.SizeHint,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.Docs.Create(ctx, doc); err != nil {
		return SubmitResult{}, err
	}

	task := UploadTask{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.Tasks.Create(ctx, task); err != nil {
		return SubmitResult{}, err
	}

	metrics.IncUploadsStarted()
	o.publish(doc.ID, task.ID, StatusPending, 0, "")
	telemetry.Info("uploads.submitted", map[string]any{
		"document_id": doc.ID,
		"task_id":     task.ID,
		"size_bytes":  in.SizeHint,
		"request_id":  in.RequestID,
	})

	if _, err := o.Stage.Stage(task.ID, in.Body); err != nil {
		o.markFailed(ctx, task.ID, doc.ID, err)
		return SubmitResult{}, err
	}

	if in.SizeHint <= o.syncThreshold() {
		if err := o.process(ctx, task.ID, doc.ID); err != nil {
			o.markFailed(ctx, task.ID, doc.ID, err)
		}
		final, err := o.Tasks.GetByID(ctx, task.ID)
		if err != nil {
			return SubmitResult{}, err
		}
		updated, err := o.Docs.GetByID(ctx, doc.ID)
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Document: updated, Task: final, Async: false}, nil
	}

	job := queue.Job{
		Key:        task.ID,
		TaskID:     task.ID,
		DocumentID: doc.ID,
		RequestID:  in.RequestID,
		EnqueuedAt: now.Format(time.RFC3339Nano),
		Version:    1,
	}
	if err := o.Queue.Enqueue(ctx, job); err != nil {
		o.markFailed(ctx, task.ID, doc.ID, err)
		return SubmitResult{}, err
	}

	return SubmitResult{Document: doc, Task: task, Async: true}, nil
}

// HandleJob executes a queued upload. Re-deliveries of finished tasks are
// no-ops.
func (o *Orchestrator) HandleJob(ctx context.Context, job queue.Job) error {
	return o.process(ctx, job.TaskID, job.DocumentID)
}

// HandleFailure marks the task failed once the queue has exhausted its
// retries.
func (o *Orchestrator) HandleFailure(ctx context.Context, job queue.Job, cause error) {
	o.markFailed(ctx, job.TaskID, job.DocumentID, cause)
}

// LatestTask returns the most recent upload task for a document.
func (o *Orchestrator) LatestTask(ctx context.Context, documentID string) (UploadTask, error) {
	return o.Tasks.LatestByDocument(ctx, documentID)
}

// CleanupStale fails non-terminal tasks that have not progressed since the
// cutoff. Returns the number of tasks failed.
func (o *Orchestrator) CleanupStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := o.now().Add(-olderThan)
	stuck, err := o.Tasks.ListStuck(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, task := range stuck {
		o.markFailed(ctx, task.ID, task.DocumentID, errors.New("upload timed out"))
	}
	if len(stuck) > 0 {
		telemetry.Info("uploads.cleanup_stale", map[string]any{"failed": len(stuck)})
	}
	return len(stuck), nil
}

// process runs the transfer pipeline for one task. The transfer itself is
// idempotent: the storage key is deterministic, so a re-run after a crash
// overwrites the same object. Recorded state only moves forward.
func (o *Orchestrator) process(ctx context.Context, taskID, documentID string) error {
	task, err := o.Tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return queue.Permanent(err)
		}
		return err
	}
	if task.Status.Terminal() {
		return nil
	}

	doc, err := o.Docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return queue.Permanent(err)
		}
		return err
	}
	if doc.Status == documents.StatusDeleted {
		return queue.Permanent(errors.New("document was deleted"))
	}

	status := task.Status
	if status == StatusPending {
		if err := o.transition(ctx, taskID, documentID, StatusPending, StatusUploading, 0); err != nil {
			return err
		}
		status = StatusUploading
	}

	size, checksum, storageKey, err := o.transfer(ctx, task, doc)
	if err != nil {
		return err
	}

	if status == StatusUploading {
		if err := o.transition(ctx, taskID, documentID, StatusUploading, StatusProcessing, 100); err != nil {
			return err
		}
	}

	if err := o.Docs.FinalizeUpload(ctx, documentID, storageKey, size, doc.ContentType, checksum, o.now()); err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return queue.Permanent(err)
		}
		return err
	}

	if err := o.transition(ctx, taskID, documentID, StatusProcessing, StatusCompleted, 100); err != nil {
		return err
	}

	o.Stage.Remove(taskID)
	metrics.IncUploadsCompleted()
	telemetry.Info("uploads.completed", map[string]any{
		"document_id": documentID,
		"task_id":     taskID,
		"size_bytes":  size,
	})
	return nil
}

// transfer streams the staged file to the object store, hashing it and
// reporting progress along the way.
func (o *Orchestrator) transfer(ctx context.Context, task UploadTask, doc documents.Document) (int64, string, string, error) {
	total, err := o.Stage.Size(task.ID)
	if err != nil {
		return 0, "", "", fmt.Errorf("staged file missing: %w", err)
	}

	src, err := o.Stage.Open(task.ID)
	if err != nil {
		return 0, "", "", err
	}
	defer src.Close()

	hasher := sha256.New()
	reader := &progressReader{
		r:     io.TeeReader(src, hasher),
		total: total,
		report: func(percent int) {
			now := o.now()
			if err := o.Tasks.UpdateProgress(ctx, task.ID, percent, now); err != nil {
				telemetry.Warn("uploads.progress_update_failed", map[string]any{
					"task_id": task.ID,
					"error":   err.Error(),
				})
			}
			o.publish(doc.ID, task.ID, StatusUploading, percent, "")
		},
	}

	storageKey := o.storageKey(doc)
	size, err := o.Store.Save(ctx, storageKey, doc.ContentType, reader)
	if err != nil {
		return 0, "", "", fmt.Errorf("store upload: %w", err)
	}

	return size, hex.EncodeToString(hasher.Sum(nil)), storageKey, nil
}

func (o *Orchestrator) transition(ctx context.Context, taskID, documentID string, from, to Status, progress int) error {
	if progress > 0 {
		if err := o.Tasks.UpdateProgress(ctx, taskID, progress, o.now()); err != nil {
			return err
		}
	}
	if err := o.Tasks.Transition(ctx, taskID, from, to, "", o.now()); err != nil {
		return err
	}
	o.publish(documentID, taskID, to, progress, "")
	return nil
}

// markFailed forces the task to failed from whatever non-terminal state it
// is in, cleans up the staged file, and emits the terminal event.
func (o *Orchestrator) markFailed(ctx context.Context, taskID, documentID string, cause error) {
	task, err := o.Tasks.GetByID(ctx, taskID)
	if err != nil || task.Status.Terminal() {
		return
	}

	msg := "upload failed"
	if cause != nil {
		msg = cause.Error()
	}
	if err := o.Tasks.Transition(ctx, taskID, task.Status, StatusFailed, msg, o.now()); err != nil {
		telemetry.Error("uploads.mark_failed_error", map[string]any{
			"task_id": taskID,
			"error":   err.Error(),
		})
		return
	}

	o.Stage.Remove(taskID)
	o.removePartialObject(ctx, documentID)
	metrics.IncUploadsFailed()
	o.publish(documentID, taskID, StatusFailed, task.Progress, msg)
	telemetry.Error("uploads.failed", map[string]any{
		"document_id": documentID,
		"task_id":     taskID,
		"cause":       msg,
	})
}

// removePartialObject deletes whatever the failed transfer wrote to the
// store. Documents that already finished activation keep their object.
func (o *Orchestrator) removePartialObject(ctx context.Context, documentID string) {
	doc, err := o.Docs.GetByID(ctx, documentID)
	if err != nil || doc.Status == documents.StatusActive {
		return
	}
	key := doc.StorageKey
	if key == "" {
		key = o.storageKey(doc)
	}
	if err := o.Store.Delete(ctx, key); err != nil && !errors.Is(err, object.ErrNotFound) {
		telemetry.Warn("uploads.partial_object_cleanup_failed", map[string]any{
			"document_id": documentID,
			"storage_key": key,
			"error":       err.Error(),
		})
	}
}

func (o *Orchestrator) publish(documentID, taskID string, status Status, progress int, errMsg string) {
	o.Hub.Publish(notify.Event{
		DocumentID:   documentID,
		TaskID:       taskID,
		Status:       string(status),
		Progress:     progress,
		ErrorMessage: errMsg,
		At:           o.now(),
	})
}

// storageKey is deterministic per document so retries overwrite rather
// than duplicate.
func (o *Orchestrator) storageKey(doc documents.Document) string {
	ownerPart := util.HashUserKey(doc.OwnerID)[:16]
	return path.Join(storagePrefix, ownerPart, doc.ID, doc.FileName)
}

func (o *Orchestrator) syncThreshold() int64 {
	if o.SyncThreshold > 0 {
		return o.SyncThreshold
	}
	return defaultSyncThreshold
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

// progressReader invokes report when the transferred fraction crosses the
// next step boundary. The final boundary fires from the pipeline, not
// here, so completion is only reported once the store write returns.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	lastStep int
	report   func(percent int)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)
	if p.total > 0 && p.report != nil {
		percent := int(p.read * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		step := percent / progressStepPercent
		if step > p.lastStep && percent < 100 {
			p.lastStep = step
			p.report(percent)
		}
	}
	return n, err
}
