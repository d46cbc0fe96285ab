package llm

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Provider names.
const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderGemini   = "gemini"
)

// Defaults applied to a zero [Endpoint].
const (
	DefaultRequestTimeout  = 30 * time.Second
	DefaultMaxOutputTokens = 500
)

// Endpoint is everything an adapter needs to reach one provider.
type Endpoint struct {
	APIKey          string
	BaseURL         string
	Model           string
	MaxOutputTokens int
	Timeout         time.Duration

	// HTTPClient overrides the shared httpkit client. Optional.
	HTTPClient *http.Client
}

func (ep Endpoint) withDefaults() Endpoint {
	if ep.Timeout <= 0 {
		ep.Timeout = DefaultRequestTimeout
	}
	if ep.MaxOutputTokens <= 0 {
		ep.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return ep
}

// NewProvider builds the adapter named by provider. An unknown name is
// a [*ConfigurationError]; a missing API key is reported when the
// provider is first called.
func NewProvider(ctx context.Context, provider string, ep Endpoint, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenAI:
		return NewOpenAI(ep, logger), nil
	case ProviderDeepSeek:
		return NewDeepSeek(ep, logger), nil
	case ProviderGemini:
		p, err := NewGemini(ctx, ep, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, &ConfigurationError{Provider: provider, Reason: "unknown provider"}
	}
}
