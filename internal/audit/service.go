package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"docvault-backend/internal/shared/telemetry"
)

// Service records and queries document access logs. Recording is best
// effort: a failed insert is logged and swallowed so it never blocks the
// operation being audited.
type Service struct {
	Repo Repo
	Now  func() time.Time
}

// RecordInput carries the fields of an access to record.
type RecordInput struct {
	DocumentID   string
	UserID       string
	Action       Action
	Success      bool
	ErrorMessage string
	ClientIP     string
	UserAgent    string
}

// Record persists an access log entry.
func (s *Service) Record(ctx context.Context, in RecordInput) {
	entry := Entry{
		ID:           uuid.NewString(),
		DocumentID:   in.DocumentID,
		UserID:       in.UserID,
		Action:       in.Action,
		Success:      in.Success,
		ErrorMessage: in.ErrorMessage,
		ClientIP:     in.ClientIP,
		UserAgent:    in.UserAgent,
		CreatedAt:    s.now(),
	}
	if err := s.Repo.Insert(ctx, entry); err != nil {
		telemetry.Warn("audit.record_failed", map[string]any{
			"document_id": in.DocumentID,
			"action":      string(in.Action),
			"error":       err.Error(),
		})
	}
}

// ListByDocument returns access log entries for a document, newest first.
func (s *Service) ListByDocument(ctx context.Context, documentID string, limit, offset int) ([]Entry, error) {
	return s.Repo.ListByDocument(ctx, documentID, limit, offset)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
