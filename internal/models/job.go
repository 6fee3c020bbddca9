package models

import (
	"time"
)

// Job lifecycle states persisted in Postgres. A job is only ever mutated
// forward: pending and attempt_failed rows are leasable, started rows are
// in-flight, the rest are terminal.
const (
	StatusPending         = "pending"
	StatusStarted         = "started"
	StatusAttemptFailed   = "attempt_failed"
	StatusCompleteSuccess = "complete_success"
	StatusCompleteFailure = "complete_failure"
	StatusDead            = "dead"
)

// Leasable reports whether a job in the given status may be handed to a worker.
func Leasable(status string) bool {
	return status == StatusPending || status == StatusAttemptFailed
}

// Terminal reports whether the status permits no further transitions.
func Terminal(status string) bool {
	switch status {
	case StatusCompleteSuccess, StatusCompleteFailure, StatusDead:
		return true
	}
	return false
}

// Job is one unit of work. The id is the primary ordering key for batched
// scans; the token is what clients poll with.
type Job struct {
	ID                   int64          `json:"id"`
	Token                string         `json:"token"`
	Type                 string         `json:"job_type"`
	Payload              map[string]any `json:"payload"`
	Status               string         `json:"status"`
	AttemptCount         int            `json:"attempt_count"`
	MaxAttempts          int            `json:"max_attempts"`
	AssignedWorker       *string        `json:"assigned_worker,omitempty"`
	AssignedCluster      *string        `json:"assigned_cluster,omitempty"`
	RetryAt              *time.Time     `json:"retry_at,omitempty"`
	FirstStartedAt       *time.Time     `json:"first_started_at,omitempty"`
	FailureReason        *string        `json:"failure_reason,omitempty"`
	UUIDIdempotencyToken string         `json:"uuid_idempotency_token"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// MediaFile is the stored result of a completed media job. The object hash is
// the sole input to bucket path derivation; the denormalized bucket path is
// kept only for rows that predate the unified path scheme.
type MediaFile struct {
	ID               int64     `json:"id"`
	Token            string    `json:"token"`
	ObjectHash       string    `json:"object_hash"`
	MediaType        string    `json:"media_type"`
	MimeType         string    `json:"mime_type"`
	FileSizeBytes    int64     `json:"file_size_bytes"`
	LegacyBucketPath *string   `json:"legacy_bucket_path,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
