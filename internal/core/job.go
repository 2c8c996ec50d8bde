package core

import "time"

// User is an account created through Google sign-in.
type User struct {
	ID                 int64     `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	GoogleRefreshToken string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
}

// JobStatus is the lifecycle state of a mailbox sync.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Done reports whether the job reached a final state.
func (s JobStatus) Done() bool {
	return s == JobCompleted || s == JobFailed
}

// SyncJob tracks one request to scan a user's mailbox. Clients poll it
// until Status is final and then re-fetch their bills.
type SyncJob struct {
	ID           string     `json:"id"`
	UserID       int64      `json:"user_id"`
	Status       JobStatus  `json:"status"`
	Scanned      int        `json:"scanned"`
	CreatedBills int        `json:"created_bills"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
