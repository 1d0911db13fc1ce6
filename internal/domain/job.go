package domain

import (
	"fmt"
	"time"
)

// JobStatus is the task status reported by the inference API.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSucceed JobStatus = "SUCCEED"
	JobStatusFailed  JobStatus = "FAILED"
)

// Terminal reports whether polling should stop at this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceed || s == JobStatusFailed
}

// JobRequest is the payload submitted to create an asynchronous image job.
type JobRequest struct {
	Model          string  `json:"model"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	ImageURL       string  `json:"image_url,omitempty"`
	Size           string  `json:"size"`
	Steps          int     `json:"steps"`
	Guidance       float64 `json:"guidance"`
	Seed           int     `json:"seed"`
}

// FormatSize renders a size the way the API expects it.
func FormatSize(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}

// JobHandle identifies a submitted job while it is being polled.
type JobHandle struct {
	TaskID      string
	SubmittedAt time.Time
}

// RetryPolicy bounds the attempts of a single remote call.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Backoff returns base_delay * 2^attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}

var (
	// SubmitRetryPolicy applies to job submission.
	SubmitRetryPolicy = RetryPolicy{MaxRetries: 2, BaseDelay: 3 * time.Second}
	// StatusRetryPolicy applies to each status poll independently.
	StatusRetryPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second}
)

// MinPollDeadline is the lower bound on total polling time.
const MinPollDeadline = 60 * time.Second

// PollDeadline returns max(60s, timeout).
func PollDeadline(timeout time.Duration) time.Duration {
	if timeout < MinPollDeadline {
		return MinPollDeadline
	}
	return timeout
}
