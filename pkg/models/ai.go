// Package models contains shared data models used across the creatorgen codebase.
package models

import "context"

// Generator is the core interface that all AI integrations must implement.
// Jobs depend on this interface, never on a concrete provider.
type Generator interface {
	// Generate runs one structured completion and returns the raw JSON object
	// produced by the model.
	Generate(ctx context.Context, req GenerateRequest) ([]byte, error)
	// Name returns the provider identifier (e.g., "gateway", "anthropic").
	Name() string
	// Model returns the model the provider was configured with.
	Model() string
}

// GenerateRequest is the input to a single generation call. Prompt has
// already been sanitized by the caller.
type GenerateRequest struct {
	System string
	Prompt string
	// Schema is a JSON Schema for the expected object. Providers that support
	// structured output pass it through; the caller validates regardless.
	Schema map[string]any
}
