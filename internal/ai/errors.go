package ai

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
	ErrNotConfigured       = errors.New("ai provider not configured")
)

// ClassifyCallError maps a failed provider call onto the package sentinels so
// callers can tell a timeout from an unavailable upstream.
func ClassifyCallError(ctx context.Context, provider string, err error) error {
	if errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrInferenceTimeout) ||
		errors.Is(err, ErrInvalidResponse) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrInferenceTimeout, provider, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, provider, err)
}
