package audit

import "context"

// Repo persists access log entries.
type Repo interface {
	Insert(ctx context.Context, entry Entry) error
	ListByDocument(ctx context.Context, documentID string, limit, offset int) ([]Entry, error)
}
