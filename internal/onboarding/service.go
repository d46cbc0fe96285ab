package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/nugget/onboard/internal/fields"
	"github.com/nugget/onboard/internal/llm"
)

// Reply is the service's answer to a start or answer request.
type Reply struct {
	SessionID  string
	Text       string
	IsComplete bool

	// Profile holds the collected fields once the session completes.
	Profile Profile

	// CompletionMessage is the closing line shown after completion.
	CompletionMessage string

	// Fallback marks a canned reply given because the provider could
	// not be reached.
	Fallback bool
}

// Service runs onboarding conversations against a [Store].
type Service struct {
	store    Store
	advancer *Advancer
	schema   *fields.Schema
	notifier CompletionNotifier
	logger   *slog.Logger
}

// ServiceOption configures a [Service].
type ServiceOption func(*Service)

// WithNotifier registers a notifier for completed sessions.
func WithNotifier(n CompletionNotifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// NewService returns a service that stores sessions in store and
// advances them with advancer.
func NewService(store Store, advancer *Advancer, schema *fields.Schema, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		advancer: advancer,
		schema:   schema,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a session for userID and records the opening question as
// the first assistant turn. No provider call is made.
func (s *Service) Start(ctx context.Context, userID string) (*Reply, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	sess, err := s.store.CreateSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	question := s.schema.FirstQuestion()
	if err := s.store.AppendTurn(ctx, sess.ID, llm.SpeakerAssistant, question); err != nil {
		return nil, fmt.Errorf("record first question: %w", err)
	}

	s.logger.Info("onboarding started", "session_id", sess.ID, "user_id", userID)
	return &Reply{SessionID: sess.ID, Text: question}, nil
}

// Answer processes one user answer. It returns [ErrSessionNotFound],
// [ErrSessionCompleted], or [ErrEmptyAnswer] for requests that cannot
// proceed, and a [*llm.ConfigurationError] if the provider cannot be
// called at all. Provider outages yield a fallback reply, not an error,
// and leave the session unchanged apart from the two new turns.
func (s *Service) Answer(ctx context.Context, sessionID, answer string) (*Reply, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Completed() {
		return nil, ErrSessionCompleted
	}
	if strings.TrimSpace(answer) == "" {
		return nil, ErrEmptyAnswer
	}

	logger := s.logger.With("session_id", sess.ID)
	logger.Info("answer received", "history", len(sess.History))

	out, err := s.advancer.Advance(ctx, sess, answer)
	if err != nil {
		return nil, err
	}

	if err := s.store.AppendTurn(ctx, sess.ID, llm.SpeakerUser, answer); err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}
	if err := s.store.AppendTurn(ctx, sess.ID, llm.SpeakerAssistant, out.Reply); err != nil {
		return nil, fmt.Errorf("record reply: %w", err)
	}
	if len(out.Merged) > 0 {
		if err := s.store.MergeProfileFields(ctx, sess.ID, out.Merged); err != nil {
			return nil, fmt.Errorf("merge profile: %w", err)
		}
		logger.Info("profile updated", "fields", slices.Sorted(maps.Keys(out.Merged)))
	}

	reply := &Reply{
		SessionID: sess.ID,
		Text:      out.Reply,
		Fallback:  out.Error,
	}
	if !out.IsComplete {
		return reply, nil
	}

	if err := s.store.MarkCompleted(ctx, sess.ID); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	final, err := s.store.LoadSession(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}
	logger.Info("onboarding completed", "user_id", final.UserID)

	if s.notifier != nil {
		if err := s.notifier.NotifyCompleted(ctx, final); err != nil {
			logger.Warn("completion notification failed", "error", err)
		}
	}

	reply.IsComplete = true
	reply.Profile = Profile(s.schema.Collected(final.Profile))
	reply.CompletionMessage = fields.CompletionAnimation
	return reply, nil
}

// Session returns the full state of a session.
func (s *Service) Session(ctx context.Context, sessionID string) (*Session, error) {
	return s.load(ctx, sessionID)
}

// Schema returns the field schema the service collects.
func (s *Service) Schema() *fields.Schema {
	return s.schema
}

func (s *Service) load(ctx context.Context, sessionID string) (*Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrInvalidSessionID
	}
	sess, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
