package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// JobKindSocialPosts turns a piece of long-form content into three
// platform-specific post variants.
const JobKindSocialPosts = "social_posts"

// Job tracks one asynchronous generation request. The API returns the job id on
// POST /api/v1/jobs; the client polls GET /api/v1/jobs/{id} until status is
// completed or failed.
type Job struct {
	ID            uuid.UUID       `db:"id"             json:"id"`
	OwnerID       uuid.UUID       `db:"owner_id"       json:"-"`
	Kind          string          `db:"kind"           json:"kind"`
	Status        string          `db:"status"         json:"status"`
	InputSnapshot json.RawMessage `db:"input_snapshot" json:"-"`
	Result        json.RawMessage `db:"result"         json:"result,omitempty"`
	ErrorMessage  *string         `db:"error_message"  json:"error,omitempty"`
	StartedAt     *time.Time      `db:"started_at"     json:"startedAt,omitempty"`
	CompletedAt   *time.Time      `db:"completed_at"   json:"completedAt,omitempty"`
	CreatedAt     time.Time       `db:"created_at"     json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at"     json:"updatedAt"`
}

// IsTerminal reports whether no further transitions can happen.
func (j *Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

// IsTerminalStatus reports whether status is completed or failed.
func IsTerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// ValidJobStatus reports whether status is one of the four known states.
func ValidJobStatus(status string) bool {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

var jobTransitions = map[string][]string{
	JobStatusPending:    {JobStatusProcessing},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
// Status only moves forward and terminal states are final.
func CanTransition(from, to string) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SocialPosts is the result payload of a social_posts job.
type SocialPosts struct {
	Twitter   string `json:"twitter"   validate:"required"`
	LinkedIn  string `json:"linkedin"  validate:"required"`
	Instagram string `json:"instagram" validate:"required"`
}

// JobInput is the caller-submitted payload of a social_posts job.
type JobInput struct {
	Title     string     `json:"title,omitempty"`
	Content   string     `json:"content"`
	ProjectID *uuid.UUID `json:"projectId,omitempty"`
}
