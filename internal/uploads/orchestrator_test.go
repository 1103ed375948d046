package uploads

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"docvault-backend/internal/documents"
	"docvault-backend/internal/notify"
	"docvault-backend/internal/queue"
	"docvault-backend/internal/shared/storage/object"
	"docvault-backend/internal/shared/storage/object/local"
	"docvault-backend/internal/users"
)

type capturingQueue struct {
	jobs []queue.Job
}

func (q *capturingQueue) Enqueue(ctx context.Context, job queue.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *capturingQueue) {
	t.Helper()
	userRepo := users.NewMemoryRepo()
	if err := userRepo.Upsert(context.Background(), users.User{ID: "owner", Email: "owner@example.com"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	q := &capturingQueue{}
	o := &Orchestrator{
		Tasks:         NewMemoryRepo(),
		Docs:          documents.NewMemoryRepo(),
		Users:         userRepo,
		Store:         local.New(t.TempDir()),
		Stage:         &Stager{Dir: t.TempDir()},
		Hub:           notify.NewHub(),
		Queue:         q,
		SyncThreshold: 1 << 20,
		MaxBytes:      10 << 20,
	}
	return o, q
}

func submitInput(content string) SubmitInput {
	return SubmitInput{
		OwnerID:     "owner",
		Title:       "Quarterly report",
		FileName:    "report.pdf",
		ContentType: "application/pdf",
		SizeHint:    int64(len(content)),
		Body:        strings.NewReader(content),
	}
}

func TestSubmitSyncCompletesInline(t *testing.T) {
	o, q := newTestOrchestrator(t)
	content := "hello document vault"

	res, err := o.Submit(context.Background(), submitInput(content))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Async {
		t.Fatal("small upload should run inline")
	}
	if res.Task.Status != StatusCompleted {
		t.Fatalf("expected completed task, got %s (%s)", res.Task.Status, res.Task.ErrorMessage)
	}
	if res.Task.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", res.Task.Progress)
	}
	if res.Document.Status != documents.StatusActive {
		t.Fatalf("expected active document, got %s", res.Document.Status)
	}
	if res.Document.SizeBytes != int64(len(content)) {
		t.Fatalf("expected size %d, got %d", len(content), res.Document.SizeBytes)
	}
	sum := sha256.Sum256([]byte(content))
	if res.Document.Checksum != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum mismatch: %s", res.Document.Checksum)
	}
	if res.Document.StorageKey == "" {
		t.Fatal("expected a storage key after finalize")
	}
	if len(q.jobs) != 0 {
		t.Fatalf("inline upload must not enqueue, got %d jobs", len(q.jobs))
	}

	// The stored object holds the original bytes.
	rc, err := o.Store.Open(context.Background(), res.Document.StorageKey)
	if err != nil {
		t.Fatalf("open stored object: %v", err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		t.Fatalf("read stored object: %v", err)
	}
	if buf.String() != content {
		t.Fatalf("stored content mismatch: %q", buf.String())
	}
}

func TestSubmitAsyncEnqueuesAndHandleJobCompletes(t *testing.T) {
	o, q := newTestOrchestrator(t)
	o.SyncThreshold = 1
	content := "a body large enough to cross the threshold"
	ctx := context.Background()

	res, err := o.Submit(ctx, submitInput(content))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Async {
		t.Fatal("upload above the threshold should be queued")
	}
	if res.Task.Status != StatusPending {
		t.Fatalf("expected pending task, got %s", res.Task.Status)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(q.jobs))
	}
	if q.jobs[0].Key != res.Task.ID || q.jobs[0].DocumentID != res.Document.ID {
		t.Fatalf("job wiring mismatch: %+v", q.jobs[0])
	}

	if err := o.HandleJob(ctx, q.jobs[0]); err != nil {
		t.Fatalf("HandleJob: %v", err)
	}

	task, err := o.LatestTask(ctx, res.Document.ID)
	if err != nil {
		t.Fatalf("LatestTask: %v", err)
	}
	if task.Status != StatusCompleted {
		t.Fatalf("expected completed task, got %s (%s)", task.Status, task.ErrorMessage)
	}
	doc, err := o.Docs.GetByID(ctx, res.Document.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if doc.Status != documents.StatusActive {
		t.Fatalf("expected active document, got %s", doc.Status)
	}
}

func TestHandleJobRedeliveryIsNoOp(t *testing.T) {
	o, q := newTestOrchestrator(t)
	o.SyncThreshold = 1
	ctx := context.Background()

	res, err := o.Submit(ctx, submitInput("queued twice"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := o.HandleJob(ctx, q.jobs[0]); err != nil {
		t.Fatalf("first HandleJob: %v", err)
	}

	events, cancel := o.Hub.Subscribe(res.Document.ID)
	defer cancel()

	if err := o.HandleJob(ctx, q.jobs[0]); err != nil {
		t.Fatalf("redelivered HandleJob: %v", err)
	}
	select {
	case ev := <-events:
		t.Fatalf("redelivery of a finished task published %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleJobMissingTaskIsPermanent(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	err := o.HandleJob(context.Background(), queue.Job{Key: "ghost", TaskID: "ghost", DocumentID: "ghost"})
	if !queue.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestHandleFailureMarksTaskFailed(t *testing.T) {
	o, q := newTestOrchestrator(t)
	o.SyncThreshold = 1
	ctx := context.Background()

	res, err := o.Submit(ctx, submitInput("doomed upload body"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	events, cancel := o.Hub.Subscribe(res.Document.ID)
	defer cancel()

	o.HandleFailure(ctx, q.jobs[0], errors.New("store unreachable"))

	task, err := o.Tasks.GetByID(ctx, res.Task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if task.Status != StatusFailed {
		t.Fatalf("expected failed task, got %s", task.Status)
	}
	if task.ErrorMessage != "store unreachable" {
		t.Fatalf("unexpected error message %q", task.ErrorMessage)
	}

	select {
	case ev := <-events:
		if ev.Status != string(StatusFailed) || ev.ErrorMessage == "" {
			t.Fatalf("unexpected terminal event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no terminal event published")
	}
}

// finalizeFailingDocs simulates a database outage at the finalize step,
// after the object has already been written to the store.
type finalizeFailingDocs struct {
	documents.Repo
}

func (r finalizeFailingDocs) FinalizeUpload(ctx context.Context, documentID, storageKey string, sizeBytes int64, contentType, checksum string, updatedAt time.Time) error {
	return errors.New("finalize unavailable")
}

func TestFailedUploadRemovesStoredObject(t *testing.T) {
	o, q := newTestOrchestrator(t)
	o.Docs = finalizeFailingDocs{Repo: o.Docs}
	o.SyncThreshold = 1
	ctx := context.Background()

	res, err := o.Submit(ctx, submitInput("body that crosses the threshold"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := o.HandleJob(ctx, q.jobs[0]); err == nil {
		t.Fatal("expected finalize error from HandleJob")
	}
	key := o.storageKey(res.Document)
	rc, err := o.Store.Open(ctx, key)
	if err != nil {
		t.Fatalf("object should exist while retries continue: %v", err)
	}
	rc.Close()

	// Retries exhausted: the failure handler must not leave the object
	// behind for a document that never activated.
	o.HandleFailure(ctx, q.jobs[0], errors.New("finalize unavailable"))

	task, err := o.Tasks.GetByID(ctx, res.Task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if task.Status != StatusFailed {
		t.Fatalf("expected failed task, got %s", task.Status)
	}
	if _, err := o.Store.Open(ctx, key); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected stored object to be removed, got %v", err)
	}
}

func TestSubmitEventsArriveInOrder(t *testing.T) {
	o, q := newTestOrchestrator(t)
	o.SyncThreshold = 1
	ctx := context.Background()

	res, err := o.Submit(ctx, submitInput("streamed with events"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	events, cancel := o.Hub.Subscribe(res.Document.ID)
	defer cancel()

	if err := o.HandleJob(ctx, q.jobs[0]); err != nil {
		t.Fatalf("HandleJob: %v", err)
	}

	want := []Status{StatusUploading, StatusProcessing, StatusCompleted}
	var got []Status
	for len(got) < len(want) {
		select {
		case ev := <-events:
			got = append(got, Status(ev.Status))
		case <-time.After(time.Second):
			t.Fatalf("timed out, received %v", got)
		}
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s (all: %v)", i, want[i], got[i], got)
		}
	}
}

func TestSubmitRejectsUnknownOwner(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	in := submitInput("whoami")
	in.OwnerID = "stranger"
	if _, err := o.Submit(context.Background(), in); !errors.Is(err, ErrUnknownOwner) {
		t.Fatalf("expected ErrUnknownOwner, got %v", err)
	}
}

func TestSubmitRejectsOversizedUpload(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.MaxBytes = 8
	in := submitInput("more than eight bytes")
	if _, err := o.Submit(context.Background(), in); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestSubmitRejectsBadFileName(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	in := submitInput("traversal attempt")
	in.FileName = "../../etc/passwd"
	if _, err := o.Submit(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSubmitDefaultsTitleToFileName(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	in := submitInput("untitled body")
	in.Title = "   "
	res, err := o.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Document.Title != "report.pdf" {
		t.Fatalf("expected file name as title, got %q", res.Document.Title)
	}
}

func TestCleanupStaleFailsStuckTasks(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.SyncThreshold = 1
	current := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	o.Now = func() time.Time { return current }
	ctx := context.Background()

	res, err := o.Submit(ctx, submitInput("left behind body"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	current = current.Add(time.Hour)
	failed, err := o.CleanupStale(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("CleanupStale: %v", err)
	}
	if failed != 1 {
		t.Fatalf("expected 1 failed task, got %d", failed)
	}

	task, err := o.Tasks.GetByID(ctx, res.Task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if task.Status != StatusFailed {
		t.Fatalf("expected failed task, got %s", task.Status)
	}

	// A second sweep finds nothing.
	failed, err = o.CleanupStale(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("CleanupStale: %v", err)
	}
	if failed != 0 {
		t.Fatalf("expected no stuck tasks, got %d", failed)
	}
}

func TestMemoryRepoOneActiveTaskPerDocument(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	first := UploadTask{ID: "task-1", DocumentID: "doc-1", Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	second := UploadTask{ID: "task-2", DocumentID: "doc-1", Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, second); !errors.Is(err, ErrActiveTaskExists) {
		t.Fatalf("expected ErrActiveTaskExists, got %v", err)
	}

	// Once the active task finishes another may start.
	if err := repo.Transition(ctx, "task-1", StatusPending, StatusFailed, "gave up", now); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("create after terminal: %v", err)
	}
}
