package llm

import "log/slog"

// NewDeepSeek returns a provider for DeepSeek's OpenAI-compatible chat
// completions endpoint.
func NewDeepSeek(ep Endpoint, logger *slog.Logger) *ChatCompletionsProvider {
	return newChatCompletions(ProviderDeepSeek, ep, logger)
}
