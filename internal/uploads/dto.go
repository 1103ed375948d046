package uploads

import (
	"time"

	"docvault-backend/internal/documents"
)

// TaskResponse is the outward-facing representation of an upload task.
type TaskResponse struct {
	TaskID       string    `json:"taskId"`
	DocumentID   string    `json:"documentId"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toTaskResponse(task UploadTask) TaskResponse {
	return TaskResponse{
		TaskID:       task.ID,
		DocumentID:   task.DocumentID,
		Status:       string(task.Status),
		Progress:     task.Progress,
		ErrorMessage: task.ErrorMessage,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
	}
}

type submitResponse struct {
	Document documents.DocumentResponse `json:"document"`
	Task     TaskResponse               `json:"task"`
	Async    bool                       `json:"async"`
}
