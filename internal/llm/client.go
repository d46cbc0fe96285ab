// Package llm talks to generative text providers on behalf of the
// onboarding conversation. Each provider adapter turns a canonical
// history into its own wire format and returns a validated [Result];
// the [Orchestrator] adds retry, backoff, and the fallback reply.
package llm

import "context"

// Provider is the interface that all LLM backends must implement.
type Provider interface {
	// Name returns the provider's configuration name (openai, deepseek,
	// gemini).
	Name() string

	// Call sends the full history, including the latest user turn, with
	// the system prompt and returns the validated result. Failures are
	// a *TransportError or a *MalformedResponseError.
	Call(ctx context.Context, history []Turn, systemPrompt string, temperature float64) (*Result, error)
}
