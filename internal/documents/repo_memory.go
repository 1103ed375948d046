package documents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Document
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Document)}
}

func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[doc.ID] = doc
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.data[documentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (r *MemoryRepo) GetByIDs(ctx context.Context, documentIDs []string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Document
	for _, id := range documentIDs {
		if doc, ok := r.data[id]; ok && doc.Status != StatusDeleted {
			out = append(out, doc)
		}
	}
	sortDocuments(out)
	return out, nil
}

func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Document
	for _, doc := range r.data {
		if doc.OwnerID == ownerID && doc.Status != StatusDeleted {
			out = append(out, doc)
		}
	}
	sortDocuments(out)
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) UpdateMeta(ctx context.Context, documentID, title, description string, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[documentID]
	if !ok || doc.Status == StatusDeleted {
		return ErrNotFound
	}
	doc.Title = title
	doc.Description = description
	doc.UpdatedAt = updatedAt
	r.data[documentID] = doc
	return nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, documentID string, to Status, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[documentID]
	if !ok {
		return ErrNotFound
	}
	doc.Status = to
	doc.UpdatedAt = updatedAt
	r.data[documentID] = doc
	return nil
}

func (r *MemoryRepo) FinalizeUpload(ctx context.Context, documentID, storageKey string, sizeBytes int64, contentType, checksum string, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[documentID]
	if !ok || doc.Status == StatusDeleted {
		return ErrNotFound
	}
	doc.StorageKey = storageKey
	doc.SizeBytes = sizeBytes
	doc.ContentType = contentType
	doc.Checksum = checksum
	doc.Status = StatusActive
	doc.UpdatedAt = updatedAt
	r.data[documentID] = doc
	return nil
}

func (r *MemoryRepo) IncrementDownload(ctx context.Context, documentID string, accessedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[documentID]
	if !ok {
		return ErrNotFound
	}
	doc.DownloadCount++
	at := accessedAt
	doc.LastAccessedAt = &at
	r.data[documentID] = doc
	return nil
}

func sortDocuments(docs []Document) {
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
}

var _ Repo = (*MemoryRepo)(nil)
