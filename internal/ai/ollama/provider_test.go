package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/creatorgen/internal/ai"
	"github.com/kiranshivaraju/creatorgen/internal/ai/ollama"
	"github.com/kiranshivaraju/creatorgen/internal/config"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": `{"twitter":"t","linkedin":"l","instagram":"i"}`},
			"done":    true,
		})
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"}, nil)
	out, err := p.Generate(context.Background(), models.GenerateRequest{System: "s", Prompt: "p"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"twitter":"t","linkedin":"l","instagram":"i"}`, string(out))

	assert.Equal(t, "llama3", got["model"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, "json", got["format"])
}

func TestGenerate_SchemaBecomesFormat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": `{"a":1}`},
		})
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"}, nil)
	_, err := p.Generate(context.Background(), models.GenerateRequest{
		Prompt: "p",
		Schema: map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "object"}, got["format"])
}

func TestGenerate_ErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "missing"}, nil)
	_, err := p.Generate(context.Background(), models.GenerateRequest{Prompt: "p"})
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "model not found")
}

func TestGenerate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"}, nil)
	_, err := p.Generate(context.Background(), models.GenerateRequest{Prompt: "p"})
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}
