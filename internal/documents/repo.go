package documents

import (
	"context"
	"time"
)

// Repo persists documents.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, documentID string) (Document, error)
	GetByIDs(ctx context.Context, documentIDs []string) ([]Document, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Document, error)
	UpdateMeta(ctx context.Context, documentID, title, description string, updatedAt time.Time) error
	UpdateStatus(ctx context.Context, documentID string, to Status, updatedAt time.Time) error
	FinalizeUpload(ctx context.Context, documentID, storageKey string, sizeBytes int64, contentType, checksum string, updatedAt time.Time) error
	IncrementDownload(ctx context.Context, documentID string, accessedAt time.Time) error
}
