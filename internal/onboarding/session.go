// Package onboarding runs the profile-collection conversation. The
// [Advancer] turns one user utterance into a provider call and a
// profile merge; the [Service] wraps it with session persistence and
// completion handling for the HTTP and CLI front doors.
package onboarding

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/nugget/onboard/internal/llm"
)

// Errors returned by the [Service] and by [Store] implementations.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionCompleted = errors.New("session already completed")
	ErrInvalidSessionID = errors.New("invalid session ID format")
	ErrEmptyAnswer      = errors.New("answer is empty")
	ErrEmptyUserID      = errors.New("user_id is required")
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Profile maps field names to collected values. Unset fields are
// absent.
type Profile map[string]string

// Turn is one persisted conversation entry.
type Turn struct {
	Speaker   llm.Speaker `json:"role"`
	Text      string      `json:"content"`
	CreatedAt time.Time   `json:"timestamp"`
}

// Session is a single onboarding conversation with one user.
type Session struct {
	ID          string
	UserID      string
	Status      Status
	Profile     Profile
	History     []Turn
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}

// Completed reports whether the session has finished.
func (s *Session) Completed() bool {
	return s.Status == StatusCompleted
}

// CanonicalHistory maps the stored history to provider-agnostic turns.
func (s *Session) CanonicalHistory() []llm.Turn {
	out := make([]llm.Turn, len(s.History))
	for i, t := range s.History {
		out[i] = llm.Turn{Speaker: t.Speaker, Text: t.Text}
	}
	return out
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	out := *s
	out.Profile = maps.Clone(s.Profile)
	if out.Profile == nil {
		out.Profile = Profile{}
	}
	out.History = append([]Turn(nil), s.History...)
	return &out
}

// Store persists sessions. Implementations return [ErrSessionNotFound]
// for unknown IDs. Appends and merges to one session are applied in
// call order; callers that allow concurrent answers to the same session
// must serialize them.
type Store interface {
	CreateSession(ctx context.Context, userID string) (*Session, error)
	LoadSession(ctx context.Context, id string) (*Session, error)
	AppendTurn(ctx context.Context, id string, speaker llm.Speaker, text string) error
	MergeProfileFields(ctx context.Context, id string, fields map[string]string) error
	MarkCompleted(ctx context.Context, id string) error
}

// CompletionNotifier is told about every session that completes.
type CompletionNotifier interface {
	NotifyCompleted(ctx context.Context, s *Session) error
}
