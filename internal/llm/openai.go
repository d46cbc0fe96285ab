package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nugget/onboard/internal/httpkit"
)

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 1 << 20

// ChatCompletionsProvider speaks the OpenAI chat completions protocol.
// OpenAI and DeepSeek both use it; they differ only in endpoint, model
// and credential.
type ChatCompletionsProvider struct {
	name            string
	url             string
	apiKey          string
	model           string
	maxOutputTokens int
	timeout         time.Duration
	httpClient      *http.Client
	logger          *slog.Logger
}

// NewOpenAI returns a provider for the OpenAI chat completions API.
func NewOpenAI(ep Endpoint, logger *slog.Logger) *ChatCompletionsProvider {
	return newChatCompletions(ProviderOpenAI, ep, logger)
}

func newChatCompletions(name string, ep Endpoint, logger *slog.Logger) *ChatCompletionsProvider {
	if logger == nil {
		logger = slog.Default()
	}
	ep = ep.withDefaults()

	hc := ep.HTTPClient
	if hc == nil {
		hc = httpkit.NewClient(httpkit.WithTimeout(ep.Timeout))
	}

	return &ChatCompletionsProvider{
		name:            name,
		url:             ep.BaseURL,
		apiKey:          ep.APIKey,
		model:           ep.Model,
		maxOutputTokens: ep.MaxOutputTokens,
		timeout:         ep.Timeout,
		httpClient:      hc,
		logger:          logger.With("provider", name),
	}
}

// Chat completions request/response types

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Name returns the provider's configuration name.
func (p *ChatCompletionsProvider) Name() string { return p.name }

// Call sends the conversation as chat completion messages with the
// system prompt as the leading system-role message and JSON output
// mode enabled.
func (p *ChatCompletionsProvider) Call(ctx context.Context, history []Turn, systemPrompt string, temperature float64) (*Result, error) {
	if p.apiKey == "" {
		return nil, &ConfigurationError{Provider: p.name, Reason: "no API key"}
	}
	if p.url == "" {
		return nil, &ConfigurationError{Provider: p.name, Reason: "no API URL"}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := chatRequest{
		Model:          p.model,
		Messages:       toChatMessages(history, systemPrompt),
		Temperature:    temperature,
		MaxTokens:      p.maxOutputTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	p.logger.Debug("sending request",
		"model", p.model,
		"messages", len(req.Messages),
		"temperature", temperature,
	)
	p.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &ConfigurationError{Provider: p.name, Reason: "bad API URL: " + err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Provider: p.name, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	p.logger.Debug("response received", "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		p.logger.Warn("API error", "status", resp.StatusCode, "body", errBody)
		return nil, &TransportError{Provider: p.name, StatusCode: resp.StatusCode, Message: errBody}
	}

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, &TransportError{Provider: p.name, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}
	if len(out.Choices) == 0 {
		return nil, &TransportError{Provider: p.name, StatusCode: resp.StatusCode, Message: "no choices in response"}
	}

	content := out.Choices[0].Message.Content
	p.logger.Debug("completion received",
		"model", out.Model,
		"finish_reason", out.Choices[0].FinishReason,
		"input_tokens", out.Usage.PromptTokens,
		"output_tokens", out.Usage.CompletionTokens,
	)
	p.logger.Log(ctx, LevelTrace, "response content", "content", content)

	return Validate(content)
}

func toChatMessages(history []Turn, systemPrompt string) []chatMessage {
	msgs := make([]chatMessage, 0, len(history)+1)
	msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	for _, t := range history {
		msgs = append(msgs, chatMessage{Role: string(t.Speaker), Content: t.Text})
	}
	return msgs
}
