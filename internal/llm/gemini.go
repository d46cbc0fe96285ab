package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/nugget/onboard/internal/httpkit"
)

// GeminiProvider calls Gemini's generateContent through the genai SDK.
type GeminiProvider struct {
	client          *genai.Client
	model           string
	maxOutputTokens int32
	timeout         time.Duration
	logger          *slog.Logger

	// initErr is returned from Call when the client could not be
	// built.
	initErr error
}

// NewGemini returns a Gemini provider. With no API key the provider
// is still returned, and every Call reports a [*ConfigurationError].
func NewGemini(ctx context.Context, ep Endpoint, logger *slog.Logger) (*GeminiProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ep = ep.withDefaults()

	p := &GeminiProvider{
		model:           ep.Model,
		maxOutputTokens: int32(ep.MaxOutputTokens),
		timeout:         ep.Timeout,
		logger:          logger.With("provider", ProviderGemini),
	}
	if ep.APIKey == "" {
		p.initErr = &ConfigurationError{Provider: ProviderGemini, Reason: "no API key"}
		return p, nil
	}

	hc := ep.HTTPClient
	if hc == nil {
		hc = httpkit.NewClient(httpkit.WithTimeout(ep.Timeout))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      ep.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  hc,
		HTTPOptions: genai.HTTPOptions{BaseURL: ep.BaseURL},
	})
	if err != nil {
		return nil, &ConfigurationError{Provider: ProviderGemini, Reason: "create client: " + err.Error()}
	}
	p.client = client
	return p, nil
}

// Name returns the provider's configuration name.
func (p *GeminiProvider) Name() string { return ProviderGemini }

// Call sends the history as Gemini contents, with the system prompt as
// the system instruction and JSON output requested by MIME type.
func (p *GeminiProvider) Call(ctx context.Context, history []Turn, systemPrompt string, temperature float64) (*Result, error) {
	if p.initErr != nil {
		return nil, p.initErr
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(temperature)),
		MaxOutputTokens:   p.maxOutputTokens,
		ResponseMIMEType:  "application/json",
	}

	p.logger.Debug("sending request",
		"model", p.model,
		"contents", len(history),
		"temperature", temperature,
	)

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, p.model, toGeminiContents(history), cfg)
	if err != nil {
		return nil, p.transportError(err)
	}

	p.logger.Debug("response received", "elapsed", time.Since(start))

	if len(resp.Candidates) == 0 {
		return nil, &TransportError{Provider: ProviderGemini, Message: "no candidates in response"}
	}

	content := candidateText(resp.Candidates[0])
	p.logger.Log(ctx, LevelTrace, "response content", "content", content)

	return Validate(content)
}

// toGeminiContents maps canonical turns to Gemini contents. Gemini
// calls the assistant "model".
func toGeminiContents(history []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		var role genai.Role = genai.RoleUser
		if t.Speaker == SpeakerAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	return contents
}

func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range c.Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// transportError converts an SDK error into a [*TransportError],
// keeping the HTTP status when the API reported one.
func (p *GeminiProvider) transportError(err error) error {
	te := &TransportError{Provider: ProviderGemini, Message: "request failed", Err: err}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		te.StatusCode = apiErr.Code
		te.Message = apiErr.Message
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		te.StatusCode = apiErrPtr.Code
		te.Message = apiErrPtr.Message
	}

	p.logger.Warn("API error", "status", te.StatusCode, "error", err)
	if te.Message == "" {
		te.Message = fmt.Sprintf("request failed: %v", err)
	}
	return te
}
