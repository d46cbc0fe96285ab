package llm

import (
	"log/slog"
	"maps"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one entry of the provider-agnostic conversation history.
type Turn struct {
	Speaker Speaker
	Text    string
}

// FallbackReply is the user-facing text returned when every attempt
// to reach the provider has failed.
const FallbackReply = "We're having trouble connecting. Could you try that again?"

// Result is the validated, provider-agnostic outcome of one call.
type Result struct {
	// Extracted holds field values the model pulled out of the latest
	// user turn. Never nil.
	Extracted map[string]string

	// Reply is the assistant text to show the user. Never empty.
	Reply string

	// IsComplete is the model's claim that every required field has
	// been collected.
	IsComplete bool

	// Error marks a synthetic fallback produced after retries were
	// exhausted. Fallback results never claim completion.
	Error bool
}

// Fallback returns the canned result used when the provider cannot be
// reached or keeps answering off-contract.
func Fallback() *Result {
	return &Result{
		Extracted: map[string]string{},
		Reply:     FallbackReply,
		Error:     true,
	}
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	out := *r
	out.Extracted = maps.Clone(r.Extracted)
	if out.Extracted == nil {
		out.Extracted = map[string]string{}
	}
	return &out
}
