package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docvault-backend/internal/audit"
	"docvault-backend/internal/shared/storage/object"
	"docvault-backend/internal/shared/telemetry"
	"docvault-backend/internal/sharing"
)

// AccessChecker answers permission questions about documents. Satisfied by
// the sharing service.
type AccessChecker interface {
	Check(ctx context.Context, documentID, userID string, required sharing.Level) (bool, error)
	ActiveGrantsFor(ctx context.Context, userID string) ([]sharing.ShareGrant, error)
}

// Service contains business logic for document metadata, listing and
// downloads.
type Service struct {
	Repo       Repo
	Access     AccessChecker
	Store      object.ObjectStore
	Audit      *audit.Service
	PresignTTL time.Duration
	Now        func() time.Time
}

// RequestMeta carries client details forwarded into the access log.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// Get returns the document if the caller is the owner or holds a view
// grant. Deleted documents read as not found.
func (s *Service) Get(ctx context.Context, documentID, callerID string) (Document, error) {
	doc, err := s.visibleByID(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if err := s.require(ctx, doc, callerID, sharing.LevelView); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// ListResult groups the documents visible to a user.
type ListResult struct {
	Owned  []Document
	Shared []Document
}

// List returns the caller's own documents plus documents shared with them
// through unexpired grants.
func (s *Service) List(ctx context.Context, callerID string, limit, offset int) (ListResult, error) {
	owned, err := s.Repo.ListByOwner(ctx, callerID, limit, offset)
	if err != nil {
		return ListResult{}, err
	}

	grants, err := s.Access.ActiveGrantsFor(ctx, callerID)
	if err != nil {
		return ListResult{}, err
	}
	sharedIDs := make([]string, 0, len(grants))
	for _, grant := range grants {
		sharedIDs = append(sharedIDs, grant.DocumentID)
	}
	shared, err := s.Repo.GetByIDs(ctx, sharedIDs)
	if err != nil {
		return ListResult{}, err
	}

	return ListResult{Owned: owned, Shared: shared}, nil
}

// UpdateMeta changes the title and description. Requires ownership or an
// edit grant.
func (s *Service) UpdateMeta(ctx context.Context, documentID, callerID, title, description string) (Document, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Document{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	doc, err := s.visibleByID(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if err := s.require(ctx, doc, callerID, sharing.LevelEdit); err != nil {
		return Document{}, err
	}

	now := s.now()
	if err := s.Repo.UpdateMeta(ctx, documentID, title, description, now); err != nil {
		return Document{}, err
	}
	doc.Title = title
	doc.Description = description
	doc.UpdatedAt = now
	return doc, nil
}

// Archive hides an active document from listings. Owner only.
func (s *Service) Archive(ctx context.Context, documentID, callerID string) error {
	return s.setStatus(ctx, documentID, callerID, StatusActive, StatusArchived)
}

// Restore brings an archived document back to active. Owner only.
func (s *Service) Restore(ctx context.Context, documentID, callerID string) error {
	return s.setStatus(ctx, documentID, callerID, StatusArchived, StatusActive)
}

// Delete soft-deletes the document and removes the stored object. Owner
// only. The object removal is best effort; the row is the source of truth.
func (s *Service) Delete(ctx context.Context, documentID, callerID string) error {
	doc, err := s.visibleByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != callerID {
		return ErrForbidden
	}

	if err := s.Repo.UpdateStatus(ctx, documentID, StatusDeleted, s.now()); err != nil {
		return err
	}
	if doc.StorageKey != "" {
		if err := s.Store.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, object.ErrNotFound) {
			telemetry.Warn("documents.object_delete_failed", map[string]any{
				"document_id": documentID,
				"storage_key": doc.StorageKey,
				"error":       err.Error(),
			})
		}
	}
	telemetry.Info("documents.deleted", map[string]any{"document_id": documentID})
	return nil
}

// DownloadLink is a short-lived URL for fetching the document body.
type DownloadLink struct {
	URL       string
	FileName  string
	ExpiresAt time.Time
}

// Download issues a presigned URL for the stored file. Requires download
// level access and an active document with a stored file. Every attempt,
// allowed or not, lands in the access log.
func (s *Service) Download(ctx context.Context, documentID, callerID string, meta RequestMeta) (DownloadLink, error) {
	link, err := s.download(ctx, documentID, callerID)

	rec := audit.RecordInput{
		DocumentID: documentID,
		UserID:     callerID,
		Action:     audit.ActionDownload,
		Success:    err == nil,
		ClientIP:   meta.ClientIP,
		UserAgent:  meta.UserAgent,
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
	}
	s.Audit.Record(ctx, rec)

	return link, err
}

func (s *Service) download(ctx context.Context, documentID, callerID string) (DownloadLink, error) {
	doc, err := s.visibleByID(ctx, documentID)
	if err != nil {
		return DownloadLink{}, err
	}
	if err := s.require(ctx, doc, callerID, sharing.LevelDownload); err != nil {
		return DownloadLink{}, err
	}
	if doc.Status != StatusActive || doc.StorageKey == "" {
		return DownloadLink{}, ErrNotReady
	}

	ttl := s.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	url, err := s.Store.Presign(ctx, doc.StorageKey, ttl)
	if err != nil {
		return DownloadLink{}, err
	}

	now := s.now()
	if err := s.Repo.IncrementDownload(ctx, documentID, now); err != nil {
		telemetry.Warn("documents.download_count_failed", map[string]any{
			"document_id": documentID,
			"error":       err.Error(),
		})
	}

	return DownloadLink{URL: url, FileName: doc.FileName, ExpiresAt: now.Add(ttl)}, nil
}

// AccessLogs returns the access history for a document. Owner only.
func (s *Service) AccessLogs(ctx context.Context, documentID, callerID string, limit, offset int) ([]audit.Entry, error) {
	doc, err := s.visibleByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != callerID {
		return nil, ErrForbidden
	}
	return s.Audit.ListByDocument(ctx, documentID, limit, offset)
}

func (s *Service) setStatus(ctx context.Context, documentID, callerID string, from, to Status) error {
	doc, err := s.visibleByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != callerID {
		return ErrForbidden
	}
	if doc.Status != from {
		return fmt.Errorf("%w: document is not in a state that allows this change", ErrInvalidInput)
	}
	return s.Repo.UpdateStatus(ctx, documentID, to, s.now())
}

func (s *Service) visibleByID(ctx context.Context, documentID string) (Document, error) {
	doc, err := s.Repo.GetByID(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if doc.Status == StatusDeleted {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *Service) require(ctx context.Context, doc Document, callerID string, level sharing.Level) error {
	if doc.OwnerID == callerID {
		return nil
	}
	allowed, err := s.Access.Check(ctx, doc.ID, callerID, level)
	if err != nil {
		if errors.Is(err, sharing.ErrDocumentNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
