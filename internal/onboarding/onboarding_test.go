package onboarding

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/onboard/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubCaller returns scripted results and records each history it was
// given.
type stubCaller struct {
	results   []*llm.Result
	err       error
	histories [][]llm.Turn
}

func (s *stubCaller) Call(_ context.Context, history []llm.Turn) (*llm.Result, error) {
	s.histories = append(s.histories, history)
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.histories) - 1
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i].Clone(), nil
}

// memStore is an in-memory Store for tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	calls    []string
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*Session)}
}

func (m *memStore) record(op string) { m.calls = append(m.calls, op) }

func (m *memStore) CreateSession(_ context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("create")
	now := time.Now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    StatusInProgress,
		Profile:   Profile{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[s.ID] = s
	return s.Clone(), nil
}

func (m *memStore) LoadSession(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *memStore) AppendTurn(_ context.Context, id string, speaker llm.Speaker, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("append:" + string(speaker))
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.History = append(s.History, Turn{Speaker: speaker, Text: text, CreatedAt: time.Now().UTC()})
	return nil
}

func (m *memStore) MergeProfileFields(_ context.Context, id string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("merge")
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	maps.Copy(s.Profile, fields)
	return nil
}

func (m *memStore) MarkCompleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("complete")
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Status = StatusCompleted
	s.CompletedAt = time.Now().UTC()
	return nil
}

type recordingNotifier struct {
	sessions []*Session
	err      error
}

func (r *recordingNotifier) NotifyCompleted(_ context.Context, s *Session) error {
	r.sessions = append(r.sessions, s)
	return r.err
}
