// Package gateway talks to any OpenAI-compatible chat completions endpoint:
// a hosted AI gateway, OpenAI itself, or a self-hosted vLLM server.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/creatorgen/internal/ai"
	"github.com/kiranshivaraju/creatorgen/internal/config"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
	"golang.org/x/time/rate"
)

// maxErrorBody bounds how much of an error response is kept in the message.
const maxErrorBody = 512

// Provider implements models.Generator over HTTP chat completions.
type Provider struct {
	cfg        config.GatewayConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewProvider returns a gateway provider. Outbound calls are throttled to
// cfg.RequestsPerSecond; zero or less disables throttling.
func NewProvider(cfg config.GatewayConfig, httpClient *http.Client) *Provider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Provider{cfg: cfg, httpClient: httpClient, limiter: rate.NewLimiter(limit, burst)}
}

func (p *Provider) Name() string  { return "gateway" }
func (p *Provider) Model() string { return p.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) ([]byte, error) {
	// Wait fails early when the deadline would pass before a token frees up.
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: gateway throttle: %v", ai.ErrInferenceTimeout, err)
	}

	messages := []chatMessage{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.Prompt},
	}
	if req.Schema != nil {
		schema, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema: %w", err)
		}
		messages = append(messages, chatMessage{Role: "system", Content: "JSON Schema:\n" + string(schema)})
	}

	body, err := json.Marshal(chatRequest{
		Model:          p.cfg.Model,
		Messages:       messages,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, ai.ClassifyCallError(ctx, p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: gateway status %d: %s", ai.ErrProviderUnavailable,
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode gateway response: %v", ai.ErrInvalidResponse, err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in gateway response", ai.ErrInvalidResponse)
	}
	return ai.ExtractJSONObject(decoded.Choices[0].Message.Content)
}

var _ models.Generator = (*Provider)(nil)
