package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/creatorgen/internal/api/response"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyPrefix marks raw API keys; anything else is treated as a JWT.
	APIKeyPrefix = "cg_"
	keyPrefixLen = 8
)

// KeyStore looks up API keys.
type KeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

// Auth authenticates requests with an HS256 session JWT or an API key.
type Auth struct {
	store  KeyStore
	secret []byte
}

// NewAuth creates a new Auth middleware.
func NewAuth(s KeyStore, jwtSecret string) *Auth {
	return &Auth{store: s, secret: []byte(jwtSecret)}
}

// Authenticate resolves the bearer credential to a principal and stores it in
// the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		var (
			principal  *models.Principal
			credential string
			fail       *authFailure
		)
		if strings.HasPrefix(token, APIKeyPrefix) {
			principal, credential, fail = a.fromAPIKey(r.Context(), token)
		} else {
			principal, credential, fail = a.fromJWT(token)
		}
		if fail != nil {
			response.Error(w, fail.status, fail.code, fail.message, nil)
			return
		}

		ctx := SetPrincipal(r.Context(), principal)
		ctx = setCredential(ctx, credential)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireMethod returns middleware that only admits principals authenticated
// with the given method.
func (a *Auth) RequireMethod(method string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p := GetPrincipal(r); p != nil && p.Method == method {
				next.ServeHTTP(w, r)
				return
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
		})
	}
}

type authFailure struct {
	status  int
	code    string
	message string
}

func unauthorized(msg string) *authFailure {
	return &authFailure{status: http.StatusUnauthorized, code: "INVALID_TOKEN", message: msg}
}

func (a *Auth) fromAPIKey(ctx context.Context, raw string) (*models.Principal, string, *authFailure) {
	if len(raw) < keyPrefixLen {
		return nil, "", unauthorized("Invalid API key format")
	}
	prefix := raw[:keyPrefixLen]

	keys, err := a.store.GetAPIKeyByPrefix(ctx, prefix)
	if err != nil {
		slog.Error("api key lookup failed", "error", err)
		return nil, "", &authFailure{status: http.StatusInternalServerError, code: "INTERNAL_ERROR", message: "Failed to validate API key"}
	}

	for _, key := range keys {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(raw)) != nil {
			continue
		}
		keyID := key.ID
		go func() {
			if err := a.store.UpdateAPIKeyLastUsed(context.Background(), keyID); err != nil {
				slog.Warn("failed to update api key last used", "key_id", keyID, "error", err)
			}
		}()
		p := &models.Principal{ID: key.PrincipalID, Method: models.AuthMethodAPIKey, KeyID: &keyID}
		return p, "key:" + keyID.String(), nil
	}
	return nil, "", unauthorized("Invalid API key")
}

func (a *Auth) fromJWT(raw string) (*models.Principal, string, *authFailure) {
	if len(a.secret) == 0 {
		return nil, "", unauthorized("Session tokens are not accepted")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, "", unauthorized("Session token expired")
		}
		return nil, "", unauthorized("Invalid session token")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, "", unauthorized("Invalid session token subject")
	}
	return &models.Principal{ID: id, Method: models.AuthMethodJWT}, "user:" + id.String(), nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
