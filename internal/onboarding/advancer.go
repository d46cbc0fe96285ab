package onboarding

import (
	"context"
	"log/slog"
	"maps"
	"strings"

	"github.com/nugget/onboard/internal/fields"
	"github.com/nugget/onboard/internal/llm"
)

// Caller sends a canonical history to a provider. *llm.Orchestrator
// is the production implementation; it returns the fallback result
// instead of transport or contract errors.
type Caller interface {
	Call(ctx context.Context, history []llm.Turn) (*llm.Result, error)
}

// Outcome is what one conversation step produced.
type Outcome struct {
	// Reply is the assistant text for the user.
	Reply string

	// Extracted is the provider's extraction, unfiltered.
	Extracted map[string]string

	// Merged holds the entries of Extracted that were written into the
	// profile: known field names with non-empty values.
	Merged map[string]string

	IsComplete bool

	// Error marks the fallback reply after the provider could not be
	// reached. Never set together with IsComplete.
	Error bool
}

// Advancer drives one conversation step: it sends the history plus the
// new utterance to the provider and merges what came back into the
// session profile.
type Advancer struct {
	caller          Caller
	schema          *fields.Schema
	checkCompletion bool
	logger          *slog.Logger
}

// AdvancerOption configures an [Advancer].
type AdvancerOption func(*Advancer)

// WithCompletionCheck makes the advancer ignore a completion claim
// while any required field is still missing after the merge. By
// default the provider's claim is trusted.
func WithCompletionCheck() AdvancerOption {
	return func(a *Advancer) { a.checkCompletion = true }
}

// NewAdvancer returns an advancer that extracts the fields of schema.
func NewAdvancer(caller Caller, schema *fields.Schema, logger *slog.Logger, opts ...AdvancerOption) *Advancer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Advancer{
		caller: caller,
		schema: schema,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Advance runs one step for userText against sess. It updates
// sess.Profile in place but does not touch sess.History; persisting
// both turns is the caller's job. The only error is a
// [*llm.ConfigurationError] from the caller.
func (a *Advancer) Advance(ctx context.Context, sess *Session, userText string) (*Outcome, error) {
	history := append(sess.CanonicalHistory(), llm.Turn{Speaker: llm.SpeakerUser, Text: userText})

	res, err := a.caller.Call(ctx, history)
	if err != nil {
		return nil, err
	}

	if sess.Profile == nil {
		sess.Profile = Profile{}
	}
	merged := a.merge(sess.Profile, res.Extracted)

	out := &Outcome{
		Reply:      res.Reply,
		Extracted:  maps.Clone(res.Extracted),
		Merged:     merged,
		IsComplete: res.IsComplete && !res.Error,
		Error:      res.Error,
	}
	if out.Extracted == nil {
		out.Extracted = map[string]string{}
	}

	if out.IsComplete && a.checkCompletion {
		if missing := a.schema.MissingRequired(sess.Profile); len(missing) > 0 {
			a.logger.Warn("provider claimed completion with fields missing",
				"session_id", sess.ID, "missing", missing)
			out.IsComplete = false
		}
	}

	a.logger.Debug("conversation advanced",
		"session_id", sess.ID,
		"extracted", len(out.Extracted),
		"merged", len(merged),
		"is_complete", out.IsComplete,
		"fallback", out.Error,
	)
	return out, nil
}

// merge copies known, non-empty values from extracted into profile and
// returns what it wrote. Unknown keys are dropped, and an empty value
// never clears a field that is already set.
func (a *Advancer) merge(profile Profile, extracted map[string]string) map[string]string {
	merged := make(map[string]string)
	for name, value := range extracted {
		if !a.schema.Has(name) {
			a.logger.Debug("ignoring unknown extracted field", "field", name)
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		profile[name] = value
		merged[name] = value
	}
	return merged
}
