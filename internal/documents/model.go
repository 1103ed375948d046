package documents

import "time"

// Status is the lifecycle state of a document.
type Status string

const (
	// StatusDraft is the state before an upload has produced a stored file.
	StatusDraft Status = "draft"
	// StatusActive means the file is stored and the document is usable.
	StatusActive Status = "active"
	// StatusArchived hides the document from listings without deleting it.
	StatusArchived Status = "archived"
	// StatusDeleted is a soft delete. The row stays for audit history.
	StatusDeleted Status = "deleted"
)

// Document represents a stored document owned by a user.
type Document struct {
	ID             string
	OwnerID        string
	Title          string
	Description    string
	Status         Status
	FileName       string
	ContentType    string
	SizeBytes      int64
	StorageKey     string
	Checksum       string
	DownloadCount  int64
	LastAccessedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
