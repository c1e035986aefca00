package gemini

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kiranshivaraju/creatorgen/internal/ai"
	"github.com/kiranshivaraju/creatorgen/internal/config"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
	"google.golang.org/genai"
)

// Provider implements models.Generator using the Gemini API.
type Provider struct {
	cfg    config.GeminiConfig
	client *genai.Client
}

// Option adjusts the genai client configuration.
type Option func(*genai.ClientConfig)

// WithHTTPClient sends requests through c instead of the SDK default.
func WithHTTPClient(c *http.Client) Option {
	return func(cc *genai.ClientConfig) { cc.HTTPClient = c }
}

// WithBaseURL points the client at another Gemini API endpoint.
func WithBaseURL(url string) Option {
	return func(cc *genai.ClientConfig) { cc.HTTPOptions.BaseURL = url }
}

// NewProvider builds a Gemini API client for cfg.Model. The API key is only
// checked by the service on the first request.
func NewProvider(ctx context.Context, cfg config.GeminiConfig, opts ...Option) (*Provider, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cc)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{cfg: cfg, client: client}, nil
}

// Name identifies the provider in logs and errors.
func (p *Provider) Name() string  { return "gemini" }
// Model returns the configured model name.
func (p *Provider) Model() string { return p.cfg.Model }

// Generate asks the model for a JSON object and returns the first object found
// in the reply. Call failures are classified with ai.ClassifyCallError.
func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) ([]byte, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.7)),
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(req.Prompt)},
		},
	}, genCfg)
	if err != nil {
		return nil, ai.ClassifyCallError(ctx, p.Name(), err)
	}
	return ai.ExtractJSONObject(resp.Text())
}

var _ models.Generator = (*Provider)(nil)
