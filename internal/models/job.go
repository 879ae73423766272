package models

import (
	"time"
)

// Job lifecycle states persisted in the job store.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// TranscriptionResult is the output of a successful transcription run.
type TranscriptionResult struct {
	Text                string  `json:"text"`
	Language            string  `json:"language"`
	Duration            float64 `json:"duration"`
	LanguageProbability float64 `json:"language_probability"`
}

// Job represents a transcription job record. Result is set only together
// with StatusCompleted and Error only with StatusFailed; a job is never
// partially populated.
type Job struct {
	ID        string               `json:"id"`
	Status    string               `json:"status"`
	Result    *TranscriptionResult `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Task is the queue message handed from the API to a worker. The message
// and the job store are the only channels between producer and consumer.
type Task struct {
	JobID       string `json:"job_id"`
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
}

// transitions holds the only legal status moves. Terminal states have no
// outgoing edges. A queued job may fail directly when the task is dropped
// before pickup.
var transitions = map[string][]string{
	StatusQueued:     {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether moving a job between two statuses is legal.
// A job never reverts to an earlier state.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status is final.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}
