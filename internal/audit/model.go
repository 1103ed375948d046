package audit

import "time"

// Action identifies the kind of document access being recorded.
type Action string

const (
	ActionView     Action = "view"
	ActionDownload Action = "download"
	ActionUpload   Action = "upload"
	ActionShare    Action = "share"
	ActionUnshare  Action = "unshare"
)

// Entry is a single recorded access to a document.
type Entry struct {
	ID           string
	DocumentID   string
	UserID       string
	Action       Action
	Success      bool
	ErrorMessage string
	ClientIP     string
	UserAgent    string
	CreatedAt    time.Time
}
