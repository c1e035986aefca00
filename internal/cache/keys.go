package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:status", jobID)
}

// JobEventsChannel is the pub/sub channel status changes of one job are published on.
func JobEventsChannel(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:events", jobID)
}

// RateLimitKey scopes a fixed-window request counter to one credential and window.
func RateLimitKey(credential string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", credential, window)
}
