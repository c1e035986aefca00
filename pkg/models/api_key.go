package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey lets a principal authenticate non-browser clients.
// Raw keys are shown once at creation; only the bcrypt hash is stored.
type APIKey struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	PrincipalID uuid.UUID  `db:"principal_id" json:"-"`
	Name        string     `db:"name"         json:"name"`
	KeyHash     string     `db:"key_hash"     json:"-"`
	KeyPrefix   string     `db:"key_prefix"   json:"keyPrefix"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"lastUsedAt,omitempty"`
	DeletedAt   *time.Time `db:"deleted_at"   json:"-"`
	CreatedAt   time.Time  `db:"created_at"   json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at"   json:"updatedAt"`
}

// UsageEvent records one quota-limited action by a principal.
type UsageEvent struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	PrincipalID uuid.UUID  `db:"principal_id" json:"-"`
	Action      string     `db:"action"       json:"action"`
	JobID       *uuid.UUID `db:"job_id"       json:"jobId,omitempty"`
	CreatedAt   time.Time  `db:"created_at"   json:"createdAt"`
}
