package sharing

import (
	"context"
	"time"
)

// Repo defines persistence operations for share grants.
type Repo interface {
	// Upsert stores the grant, superseding any existing grant for the same
	// (document, grantee) pair.
	Upsert(ctx context.Context, grant ShareGrant) error
	Get(ctx context.Context, documentID, granteeID string) (ShareGrant, error)
	Delete(ctx context.Context, documentID, granteeID string) error
	ListByDocument(ctx context.Context, documentID string) ([]ShareGrant, error)
	// ListActiveByGrantee returns grants for the user that have not expired
	// as of now.
	ListActiveByGrantee(ctx context.Context, granteeID string, now time.Time) ([]ShareGrant, error)
	// DeleteExpiredBefore removes grants whose expiry passed before the
	// cutoff. Hygiene only; correctness relies on lazy expiry checks.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
