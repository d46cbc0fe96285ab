package mqtt

import (
	"time"

	"github.com/nugget/onboard/internal/buildinfo"
	"github.com/nugget/onboard/internal/onboarding"
)

// InstanceInfo is the retained document published to the info topic
// on every broker (re-)connect.
type InstanceInfo struct {
	InstanceID string `json:"instance_id"`
	ClientID   string `json:"client_id"`
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	Provider   string `json:"provider,omitempty"`
	StartedAt  string `json:"started_at"`
}

// NewInstanceInfo describes this process for the info topic.
func NewInstanceInfo(instanceID, clientID, provider string) InstanceInfo {
	return InstanceInfo{
		InstanceID: instanceID,
		ClientID:   clientID,
		Version:    buildinfo.Version,
		GitCommit:  buildinfo.GitCommit,
		Provider:   provider,
		StartedAt:  time.Now().Add(-buildinfo.Uptime()).UTC().Format(time.RFC3339),
	}
}

// CompletionEvent is the payload published for each completed session.
type CompletionEvent struct {
	SessionID   string            `json:"session_id"`
	UserID      string            `json:"user_id"`
	Profile     map[string]string `json:"profile"`
	CompletedAt time.Time         `json:"completed_at"`
	InstanceID  string            `json:"instance_id,omitempty"`
}

// NewCompletionEvent builds the event for a completed session.
func NewCompletionEvent(s *onboarding.Session, instanceID string) CompletionEvent {
	profile := make(map[string]string, len(s.Profile))
	for k, v := range s.Profile {
		profile[k] = v
	}
	completed := s.CompletedAt
	if completed.IsZero() {
		completed = s.UpdatedAt
	}
	return CompletionEvent{
		SessionID:   s.ID,
		UserID:      s.UserID,
		Profile:     profile,
		CompletedAt: completed.UTC(),
		InstanceID:  instanceID,
	}
}
