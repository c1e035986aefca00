package handler

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/creatorgen/internal/api/middleware"
	"github.com/kiranshivaraju/creatorgen/internal/api/response"
	"github.com/kiranshivaraju/creatorgen/internal/jobs"
	"github.com/kiranshivaraju/creatorgen/internal/store"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	keyRandomLen  = 40
	keyPrefixLen  = 8
	maxKeyNameLen = 100
	keyAlphabet   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// KeyManager persists API keys.
type KeyManager interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, principalID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, principalID uuid.UUID) error
}

// CreatedKey is returned once, on creation. Key is never shown again.
type CreatedKey struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	KeyPrefix string    `json:"keyPrefix"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/keys.
func NewCreateKeyHandler(km KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := mw.GetPrincipal(r)
		if principal == nil {
			writeError(w, r, jobs.ErrUnauthenticated)
			return
		}

		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, &jobs.ValidationError{Fields: map[string][]string{"body": {"must be a valid JSON object"}}})
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || len([]rune(req.Name)) > maxKeyNameLen {
			writeError(w, r, &jobs.ValidationError{Fields: map[string][]string{"name": {"is required and at most 100 characters"}}})
			return
		}

		rawKey, err := generateRawKey()
		if err != nil {
			writeError(w, r, err)
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, r, err)
			return
		}

		now := time.Now().UTC()
		key := &models.APIKey{
			ID:          uuid.New(),
			PrincipalID: principal.ID,
			Name:        req.Name,
			KeyHash:     string(hash),
			KeyPrefix:   rawKey[:keyPrefixLen],
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := km.CreateAPIKey(r.Context(), key); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_KEY", "API key already exists", nil)
				return
			}
			writeError(w, r, err)
			return
		}

		response.Created(w, CreatedKey{
			ID:        key.ID,
			Name:      key.Name,
			Key:       rawKey,
			KeyPrefix: key.KeyPrefix,
			CreatedAt: key.CreatedAt,
		})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/keys.
func NewListKeysHandler(km KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := mw.GetPrincipal(r)
		if principal == nil {
			writeError(w, r, jobs.ErrUnauthenticated)
			return
		}

		keys, err := km.ListAPIKeys(r.Context(), principal.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}
		response.JSON(w, keys)
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/keys/{keyID}.
func NewRevokeKeyHandler(km KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := mw.GetPrincipal(r)
		if principal == nil {
			writeError(w, r, jobs.ErrUnauthenticated)
			return
		}

		keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_KEY_ID", "Invalid key ID", nil)
			return
		}

		if err := km.RevokeAPIKey(r.Context(), keyID, principal.ID); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

func generateRawKey() (string, error) {
	var b strings.Builder
	b.WriteString(mw.APIKeyPrefix)
	n := big.NewInt(int64(len(keyAlphabet)))
	for i := 0; i < keyRandomLen; i++ {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		b.WriteByte(keyAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
