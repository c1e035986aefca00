package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	ActionGenerateSocialPosts = "generate_social_posts"

	QuotaWindow = time.Hour
	QuotaLimit  = 10
)

// UsageStore counts recorded actions.
type UsageStore interface {
	CountUsageSince(ctx context.Context, principalID uuid.UUID, action string, since time.Time) (int, error)
	OldestUsageSince(ctx context.Context, principalID uuid.UUID, action string, since time.Time) (*time.Time, error)
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool
	Used    int
	Limit   int
	Window  time.Duration
	// RetryAfter is the window length; set only when the action is denied.
	RetryAfter time.Duration
	// ResetsAt is when the oldest counted action leaves the window, if any.
	ResetsAt *time.Time
}

// Quota enforces a per-principal action count over a sliding window.
//
// The check counts first and the action is recorded later by the caller, so
// two requests racing at the boundary can both be allowed. The limit can be
// overshot by the number of concurrent submissions.
type Quota struct {
	store  UsageStore
	window time.Duration
	limit  int
	now    func() time.Time
}

func NewQuota(store UsageStore) *Quota {
	return &Quota{store: store, window: QuotaWindow, limit: QuotaLimit, now: time.Now}
}

// Check reports whether principal may perform action now. Actions with a
// timestamp in [now-window, now] are counted.
func (q *Quota) Check(ctx context.Context, principal uuid.UUID, action string) (Decision, error) {
	now := q.now().UTC()
	since := now.Add(-q.window)

	used, err := q.store.CountUsageSince(ctx, principal, action, since)
	if err != nil {
		return Decision{}, fmt.Errorf("count usage: %w", err)
	}

	d := Decision{
		Allowed: used < q.limit,
		Used:    used,
		Limit:   q.limit,
		Window:  q.window,
	}
	if !d.Allowed {
		d.RetryAfter = q.window
	}

	if used > 0 {
		oldest, err := q.store.OldestUsageSince(ctx, principal, action, since)
		if err != nil {
			return Decision{}, fmt.Errorf("oldest usage: %w", err)
		}
		if oldest != nil {
			resets := oldest.Add(q.window).UTC()
			d.ResetsAt = &resets
		}
	}
	return d, nil
}

// Usage returns the generation allowance of principal without denying
// anything. RetryAfter is only set when the limit is already reached.
func (q *Quota) Usage(ctx context.Context, principal uuid.UUID) (Decision, error) {
	return q.Check(ctx, principal, ActionGenerateSocialPosts)
}

// Exceeded converts a denied decision into the error returned to callers.
func (d Decision) Exceeded(action string) *QuotaExceededError {
	return &QuotaExceededError{
		Action:     action,
		Limit:      d.Limit,
		Used:       d.Used,
		RetryAfter: d.RetryAfter,
		Hint:       HumanizeDuration(d.RetryAfter),
	}
}

// HumanizeDuration renders whole hours or minutes in words ("1 hour",
// "30 minutes"). Other durations fall back to time.Duration formatting.
func HumanizeDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	default:
		return d.String()
	}
}
