package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// SyncRequest asks the worker to scan one user's mailbox.
// Only ids travel on the wire; the worker loads the job from the database.
type SyncRequest struct {
	JobID       string    `json:"job_id"`
	UserID      int64     `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewSyncRequest(jobID string, userID int64) *SyncRequest {
	return &SyncRequest{
		JobID:       jobID,
		UserID:      userID,
		RequestedAt: time.Now().UTC(),
	}
}

func (m *SyncRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncRequestFromJSON decodes and validates a message body.
func SyncRequestFromJSON(data []byte) (*SyncRequest, error) {
	var msg SyncRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JobID == "" || msg.UserID == 0 {
		return nil, errors.New("sync request missing job_id or user_id")
	}
	return &msg, nil
}
