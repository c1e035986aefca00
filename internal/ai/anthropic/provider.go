package anthropic

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/kiranshivaraju/creatorgen/internal/ai"
	"github.com/kiranshivaraju/creatorgen/internal/config"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

// Provider implements models.Generator using the Anthropic Messages API.
type Provider struct {
	cfg    config.AnthropicConfig
	client anthropic.Client
}

// NewProvider builds a provider. Extra request options (base URL, HTTP
// client) are passed through to the SDK.
func NewProvider(cfg config.AnthropicConfig, opts ...option.RequestOption) *Provider {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &Provider{cfg: cfg, client: anthropic.NewClient(opts...)}
}

func (p *Provider) Name() string  { return "anthropic" }
func (p *Provider) Model() string { return p.cfg.Model }

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) ([]byte, error) {
	maxTokens := p.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, ai.ClassifyCallError(ctx, p.Name(), err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ai.ExtractJSONObject(text.String())
}

var _ models.Generator = (*Provider)(nil)
