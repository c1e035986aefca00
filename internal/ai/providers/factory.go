// Package providers builds the configured generation provider.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/kiranshivaraju/creatorgen/internal/ai"
	"github.com/kiranshivaraju/creatorgen/internal/ai/anthropic"
	"github.com/kiranshivaraju/creatorgen/internal/ai/gateway"
	"github.com/kiranshivaraju/creatorgen/internal/ai/gemini"
	"github.com/kiranshivaraju/creatorgen/internal/ai/ollama"
	"github.com/kiranshivaraju/creatorgen/internal/config"
	"github.com/kiranshivaraju/creatorgen/pkg/models"
)

// New constructs the provider selected by cfg.Provider. Called once at
// startup. When the provider's credentials are missing it returns an error
// wrapping ai.ErrNotConfigured; callers keep running and fail submissions
// closed instead of exiting.
func New(ctx context.Context, cfg config.AIConfig, httpClient *http.Client) (models.Generator, error) {
	switch cfg.Provider {
	case "gateway":
		if cfg.Gateway.APIKey == "" {
			return nil, fmt.Errorf("%w: AI_GATEWAY_API_KEY is not set", ai.ErrNotConfigured)
		}
		if cfg.Gateway.BaseURL == "" || cfg.Gateway.Model == "" {
			return nil, fmt.Errorf("%w: gateway base URL and model are required", ai.ErrNotConfigured)
		}
		return gateway.NewProvider(cfg.Gateway, httpClient), nil
	case "ollama":
		if cfg.Ollama.BaseURL == "" || cfg.Ollama.Model == "" {
			return nil, fmt.Errorf("%w: ollama base URL and model are required", ai.ErrNotConfigured)
		}
		return ollama.NewProvider(cfg.Ollama, httpClient), nil
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is not set", ai.ErrNotConfigured)
		}
		var opts []option.RequestOption
		if httpClient != nil {
			opts = append(opts, option.WithHTTPClient(httpClient))
		}
		return anthropic.NewProvider(cfg.Anthropic, opts...), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", ai.ErrNotConfigured)
		}
		var opts []gemini.Option
		if httpClient != nil {
			opts = append(opts, gemini.WithHTTPClient(httpClient))
		}
		return gemini.NewProvider(ctx, cfg.Gemini, opts...)
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of gateway, ollama, anthropic, gemini", cfg.Provider)
	}
}
