package uploads

import "time"

// Status is the upload task state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUploading, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// transitions is the allowed state machine. Failed is reachable from every
// non-terminal state; completed only from processing.
var transitions = map[Status][]Status{
	StatusPending:    {StatusUploading, StatusFailed},
	StatusUploading:  {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// UploadTask tracks the progress of one document upload through the
// pipeline.
type UploadTask struct {
	ID           string
	DocumentID   string
	Status       Status
	Progress     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
