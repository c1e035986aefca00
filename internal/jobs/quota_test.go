package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func seedUsage(st *memStore, principal uuid.UUID, at time.Time, n int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i := 0; i < n; i++ {
		st.usage = append(st.usage, usageRow{principal: principal, action: ActionGenerateSocialPosts, jobID: uuid.New(), at: at})
	}
}

func TestQuota_AllowsUnderLimit(t *testing.T) {
	st := newMemStore()
	clock := newFakeClock()
	q := NewQuota(st)
	q.now = clock.now

	principal := uuid.New()
	seedUsage(st, principal, clock.t.Add(-10*time.Minute), 9)

	d, err := q.Check(context.Background(), principal, ActionGenerateSocialPosts)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 9, d.Used)
	assert.Equal(t, QuotaLimit, d.Limit)
	assert.Equal(t, time.Duration(0), d.RetryAfter)
	require.NotNil(t, d.ResetsAt)
	assert.Equal(t, clock.t.Add(50*time.Minute), *d.ResetsAt)
}

func TestQuota_DeniesAtLimit(t *testing.T) {
	st := newMemStore()
	clock := newFakeClock()
	q := NewQuota(st)
	q.now = clock.now

	principal := uuid.New()
	seedUsage(st, principal, clock.t.Add(-time.Minute), 10)

	d, err := q.Check(context.Background(), principal, ActionGenerateSocialPosts)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Hour, d.RetryAfter)

	qe := d.Exceeded(ActionGenerateSocialPosts)
	assert.Equal(t, "1 hour", qe.Hint)
	assert.Equal(t, 10, qe.Used)
	assert.Contains(t, qe.Error(), "quota exceeded")
}

func TestQuota_CountsPerPrincipalAndAction(t *testing.T) {
	st := newMemStore()
	clock := newFakeClock()
	q := NewQuota(st)
	q.now = clock.now

	principal := uuid.New()
	seedUsage(st, uuid.New(), clock.t, 10)
	st.usage = append(st.usage, usageRow{principal: principal, action: "other_action", at: clock.t})

	d, err := q.Check(context.Background(), principal, ActionGenerateSocialPosts)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Used)
	assert.Nil(t, d.ResetsAt)
}

func TestQuota_WindowBoundaryIsInclusive(t *testing.T) {
	st := newMemStore()
	clock := newFakeClock()
	q := NewQuota(st)
	q.now = clock.now

	principal := uuid.New()
	seedUsage(st, principal, clock.t.Add(-time.Hour), 10)

	d, err := q.Check(context.Background(), principal, ActionGenerateSocialPosts)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "an action exactly one window old still counts")

	clock.advance(time.Nanosecond)
	d, err = q.Check(context.Background(), principal, ActionGenerateSocialPosts)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

type failingUsageStore struct{}

func (failingUsageStore) CountUsageSince(context.Context, uuid.UUID, string, time.Time) (int, error) {
	return 0, errors.New("db down")
}

func (failingUsageStore) OldestUsageSince(context.Context, uuid.UUID, string, time.Time) (*time.Time, error) {
	return nil, nil
}

func TestQuota_StoreError(t *testing.T) {
	q := NewQuota(failingUsageStore{})
	_, err := q.Check(context.Background(), uuid.New(), ActionGenerateSocialPosts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestHumanizeDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{time.Hour, "1 hour"},
		{2 * time.Hour, "2 hours"},
		{30 * time.Minute, "30 minutes"},
		{time.Minute, "1 minute"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanizeDuration(tt.in))
	}
}
