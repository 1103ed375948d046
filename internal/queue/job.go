package queue

import "encoding/json"

// Job is the payload handed to queue consumers. Key is the stable job key
// (the upload task id); re-deliveries carry the same key so handlers can
// detect duplicates.
type Job struct {
	Key        string `json:"key"`
	TaskID     string `json:"taskId"`
	DocumentID string `json:"documentId"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// EncodeJob returns the JSON representation of a job.
func EncodeJob(job Job) ([]byte, error) {
	return json.Marshal(job)
}

// DecodeJob parses a JSON payload into a Job.
func DecodeJob(payload []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}
