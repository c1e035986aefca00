package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/creatorgen/internal/ai"
	"github.com/kiranshivaraju/creatorgen/internal/config"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

// Provider implements models.Generator against a local Ollama server.
type Provider struct {
	cfg        config.OllamaConfig
	httpClient *http.Client
}

func NewProvider(cfg config.OllamaConfig, httpClient *http.Client) *Provider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Provider{cfg: cfg, httpClient: httpClient}
}

func (p *Provider) Name() string  { return "ollama" }
func (p *Provider) Model() string { return p.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   any           `json:"format"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) ([]byte, error) {
	// Ollama accepts either "json" or a JSON Schema object as the format.
	var format any = "json"
	if req.Schema != nil {
		format = req.Schema
	}

	body, err := json.Marshal(chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Stream: false,
		Format: format,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, ai.ClassifyCallError(ctx, p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: ollama status %d", ai.ErrProviderUnavailable, resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode ollama response: %v", ai.ErrInvalidResponse, err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("%w: ollama: %s", ai.ErrProviderUnavailable, decoded.Error)
	}
	return ai.ExtractJSONObject(decoded.Message.Content)
}

var _ models.Generator = (*Provider)(nil)
