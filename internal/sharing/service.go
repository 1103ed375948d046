package sharing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docvault-backend/internal/shared/telemetry"
	"docvault-backend/internal/users"
)

// DocumentOwners resolves a document to its owning user. Implemented by an
// adapter over the documents repository; defined here to keep this package
// free of a dependency on the documents package.
type DocumentOwners interface {
	Owner(ctx context.Context, documentID string) (string, error)
}

// Service contains business logic for share grants.
type Service struct {
	Repo  Repo
	Users users.Repo
	Docs  DocumentOwners
	Now   func() time.Time
}

// GrantResult is the per-grantee outcome of a bulk grant.
type GrantResult struct {
	GranteeID string
	Grant     *ShareGrant
	Err       error
}

// Grant creates (or supersedes) a grant for the grantee. The granter must
// be the document owner or hold an active edit grant.
func (s *Service) Grant(ctx context.Context, documentID, granterID, granteeID string, level Level, expiresAt *time.Time) (ShareGrant, error) {
	if documentID == "" || granterID == "" || granteeID == "" {
		return ShareGrant{}, ErrInvalidInput
	}
	if !level.Valid() {
		return ShareGrant{}, fmt.Errorf("%w: invalid permission level", ErrInvalidInput)
	}

	now := s.now()
	if expiresAt != nil && !expiresAt.After(now) {
		return ShareGrant{}, fmt.Errorf("%w: expiry must be in the future", ErrInvalidInput)
	}

	ownerID, err := s.Docs.Owner(ctx, documentID)
	if err != nil {
		return ShareGrant{}, err
	}
	if granteeID == ownerID {
		return ShareGrant{}, ErrOwnerGrantee
	}

	allowed, err := s.canManage(ctx, documentID, granterID, ownerID)
	if err != nil {
		return ShareGrant{}, err
	}
	if !allowed {
		return ShareGrant{}, ErrForbidden
	}

	exists, err := s.Users.Exists(ctx, granteeID)
	if err != nil {
		return ShareGrant{}, err
	}
	if !exists {
		return ShareGrant{}, ErrUnknownGrantee
	}

	grant := ShareGrant{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		GranteeID:  granteeID,
		GranterID:  granterID,
		Level:      level,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}
	if err := s.Repo.Upsert(ctx, grant); err != nil {
		return ShareGrant{}, err
	}

	telemetry.Info("share.granted", map[string]any{
		"document_id": documentID,
		"grantee_id":  granteeID,
		"level":       string(level),
	})
	return grant, nil
}

// BulkGrant applies Grant independently per grantee. A failure for one
// grantee does not undo grants already applied to others.
func (s *Service) BulkGrant(ctx context.Context, documentID, granterID string, granteeIDs []string, level Level, expiresAt *time.Time) []GrantResult {
	results := make([]GrantResult, 0, len(granteeIDs))
	for _, granteeID := range granteeIDs {
		grant, err := s.Grant(ctx, documentID, granterID, granteeID, level, expiresAt)
		res := GrantResult{GranteeID: granteeID, Err: err}
		if err == nil {
			g := grant
			res.Grant = &g
		}
		results = append(results, res)
	}
	return results
}

// Revoke removes the grantee's grant. Only the document owner may revoke.
func (s *Service) Revoke(ctx context.Context, documentID, callerID, granteeID string) error {
	ownerID, err := s.Docs.Owner(ctx, documentID)
	if err != nil {
		return err
	}
	if callerID != ownerID {
		return ErrForbidden
	}
	if err := s.Repo.Delete(ctx, documentID, granteeID); err != nil {
		return err
	}
	telemetry.Info("share.revoked", map[string]any{
		"document_id": documentID,
		"grantee_id":  granteeID,
	})
	return nil
}

// Check reports whether the user holds at least the required level on the
// document. The owner always passes; otherwise an unexpired grant with a
// sufficient level is required. Expiry is evaluated at check time, so an
// expired grant denies access without any background sweep.
func (s *Service) Check(ctx context.Context, documentID, userID string, required Level) (bool, error) {
	if documentID == "" || userID == "" {
		return false, ErrInvalidInput
	}
	if !required.Valid() {
		return false, fmt.Errorf("%w: invalid permission level", ErrInvalidInput)
	}

	ownerID, err := s.Docs.Owner(ctx, documentID)
	if err != nil {
		return false, err
	}
	if userID == ownerID {
		return true, nil
	}

	grant, err := s.Repo.Get(ctx, documentID, userID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	if grant.Expired(s.now()) {
		return false, nil
	}
	return grant.Level.Allows(required), nil
}

// ListByDocument returns all grants for a document. The caller must be the
// owner or hold an active edit grant.
func (s *Service) ListByDocument(ctx context.Context, documentID, callerID string) ([]ShareGrant, error) {
	ownerID, err := s.Docs.Owner(ctx, documentID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.canManage(ctx, documentID, callerID, ownerID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}
	return s.Repo.ListByDocument(ctx, documentID)
}

// ActiveGrantsFor returns the user's unexpired grants across documents.
func (s *Service) ActiveGrantsFor(ctx context.Context, userID string) ([]ShareGrant, error) {
	return s.Repo.ListActiveByGrantee(ctx, userID, s.now())
}

// PurgeExpired removes grants that expired before now. Storage hygiene
// only; lazy expiry keeps Check correct without it.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	removed, err := s.Repo.DeleteExpiredBefore(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		telemetry.Info("share.purged_expired", map[string]any{"removed": removed})
	}
	return removed, nil
}

func (s *Service) canManage(ctx context.Context, documentID, userID, ownerID string) (bool, error) {
	if userID == ownerID {
		return true, nil
	}
	grant, err := s.Repo.Get(ctx, documentID, userID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	if grant.Expired(s.now()) {
		return false, nil
	}
	return grant.Level.Allows(LevelEdit), nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
