package jobs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrUnauthenticated  = errors.New("authentication required")
	ErrNotConfigured    = errors.New("generation service not configured")
	ErrSchedulingFailed = errors.New("could not schedule job")
)

// SecurityViolationMessage is recorded on jobs rejected by content screening.
const SecurityViolationMessage = "security violation: input contains disallowed instructions"

// ValidationError lists field-level problems with a submission.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+strings.Join(e.Fields[name], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// QuotaExceededError reports that a principal used up its allowance for the
// current window.
type QuotaExceededError struct {
	Action     string
	Limit      int
	Used       int
	RetryAfter time.Duration
	// Hint is RetryAfter in words, e.g. "1 hour".
	Hint string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d of %d used, retry in %s", e.Action, e.Used, e.Limit, e.Hint)
}
