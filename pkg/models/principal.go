package models

import "github.com/google/uuid"

const (
	AuthMethodJWT    = "jwt"
	AuthMethodAPIKey = "api_key"
)

// Principal is the authenticated identity a request acts for.
type Principal struct {
	ID     uuid.UUID
	Method string
	// KeyID is set when the principal authenticated with an API key.
	KeyID *uuid.UUID
}
