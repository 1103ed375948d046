package documents

import (
	"time"

	"docvault-backend/internal/audit"
)

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"ownerId"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status"`
	FileName       string     `json:"fileName,omitempty"`
	ContentType    string     `json:"contentType,omitempty"`
	SizeBytes      int64      `json:"sizeBytes"`
	Checksum       string     `json:"checksum,omitempty"`
	DownloadCount  int64      `json:"downloadCount"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ToResponse converts a Document to its API shape.
func ToResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		ID:             doc.ID,
		OwnerID:        doc.OwnerID,
		Title:          doc.Title,
		Description:    doc.Description,
		Status:         string(doc.Status),
		FileName:       doc.FileName,
		ContentType:    doc.ContentType,
		SizeBytes:      doc.SizeBytes,
		Checksum:       doc.Checksum,
		DownloadCount:  doc.DownloadCount,
		LastAccessedAt: doc.LastAccessedAt,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

func toResponses(docs []Document) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, ToResponse(doc))
	}
	return out
}

type downloadResponse struct {
	URL       string    `json:"url"`
	FileName  string    `json:"fileName"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type accessLogResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Action       string    `json:"action"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	ClientIP     string    `json:"clientIp,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toAccessLogResponses(entries []audit.Entry) []accessLogResponse {
	out := make([]accessLogResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, accessLogResponse{
			ID:           entry.ID,
			UserID:       entry.UserID,
			Action:       string(entry.Action),
			Success:      entry.Success,
			ErrorMessage: entry.ErrorMessage,
			ClientIP:     entry.ClientIP,
			UserAgent:    entry.UserAgent,
			CreatedAt:    entry.CreatedAt,
		})
	}
	return out
}
