package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

type contextKey string

const (
	principalKey  contextKey = "principal"
	requestIDKey  contextKey = "request_id"
	credentialKey contextKey = "credential"
	traceKey      contextKey = "trace"
)

// requestTrace is shared by pointer so middleware running outside
// Authenticate can see who the request was made by.
type requestTrace struct {
	mu          sync.Mutex
	principalID uuid.UUID
}

func (t *requestTrace) setPrincipal(id uuid.UUID) {
	t.mu.Lock()
	t.principalID = id
	t.mu.Unlock()
}

func (t *requestTrace) principal() (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.principalID, t.principalID != uuid.Nil
}

func withRequestTrace(ctx context.Context, t *requestTrace) context.Context {
	return context.WithValue(ctx, traceKey, t)
}

// SetPrincipal stores the authenticated principal in ctx.
func SetPrincipal(ctx context.Context, p *models.Principal) context.Context {
	if t, ok := ctx.Value(traceKey).(*requestTrace); ok && p != nil {
		t.setPrincipal(p.ID)
	}
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the principal set by Authenticate, or nil.
func GetPrincipal(r *http.Request) *models.Principal {
	p, _ := r.Context().Value(principalKey).(*models.Principal)
	return p
}

func setRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the id assigned by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// setCredential records a stable, non-secret identifier of the credential
// used, for rate limiting.
func setCredential(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, credentialKey, id)
}

func getCredential(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(credentialKey).(string)
	return id, ok && id != ""
}
