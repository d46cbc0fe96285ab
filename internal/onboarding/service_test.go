package onboarding

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/nugget/onboard/internal/fields"
	"github.com/nugget/onboard/internal/llm"
)

func newTestService(caller Caller, opts ...ServiceOption) (*Service, *memStore) {
	store := newMemStore()
	schema := fields.Onboarding()
	adv := NewAdvancer(caller, schema, discardLogger())
	return NewService(store, adv, schema, discardLogger(), opts...), store
}

func TestStart(t *testing.T) {
	caller := &stubCaller{}
	svc, store := newTestService(caller)

	reply, err := svc.Start(context.Background(), "  user-42 ")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if reply.Text != "Hey, what do we call you?" {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.IsComplete {
		t.Error("new session reported complete")
	}
	if len(caller.histories) != 0 {
		t.Errorf("Start() called the provider %d times", len(caller.histories))
	}

	sess, err := svc.Session(context.Background(), reply.SessionID)
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}
	if sess.UserID != "user-42" {
		t.Errorf("UserID = %q, want user-42", sess.UserID)
	}
	if sess.Status != StatusInProgress {
		t.Errorf("Status = %q", sess.Status)
	}
	want := []llm.Turn{{Speaker: llm.SpeakerAssistant, Text: "Hey, what do we call you?"}}
	if diff := cmp.Diff(want, sess.CanonicalHistory()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"create", "append:assistant"}, store.calls); diff != "" {
		t.Errorf("store calls mismatch (-want +got):\n%s", diff)
	}
}

func TestStart_EmptyUserID(t *testing.T) {
	svc, store := newTestService(&stubCaller{})

	for _, id := range []string{"", "   "} {
		if _, err := svc.Start(context.Background(), id); !errors.Is(err, ErrEmptyUserID) {
			t.Errorf("Start(%q) error = %v, want ErrEmptyUserID", id, err)
		}
	}
	if len(store.calls) != 0 {
		t.Errorf("store touched: %v", store.calls)
	}
}

func TestAnswer_Sarah(t *testing.T) {
	caller := &stubCaller{results: []*llm.Result{{
		Extracted: map[string]string{
			fields.Name:     "Sarah",
			fields.Role:     "Backend Developer",
			fields.Location: "NYC",
		},
		Reply: "Nice to meet you, Sarah! How many years have you been at it?",
	}}}
	svc, store := newTestService(caller)
	ctx := context.Background()

	start, err := svc.Start(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	reply, err := svc.Answer(ctx, start.SessionID, "I'm Sarah, a backend dev in NYC")
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}

	if reply.IsComplete || reply.Fallback {
		t.Errorf("reply = %+v, want in-progress", reply)
	}
	if reply.Profile != nil || reply.CompletionMessage != "" {
		t.Errorf("in-progress reply carries completion data: %+v", reply)
	}

	sess, err := svc.Session(ctx, start.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	wantProfile := Profile{
		fields.Name:     "Sarah",
		fields.Role:     "Backend Developer",
		fields.Location: "NYC",
	}
	if diff := cmp.Diff(wantProfile, sess.Profile); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
	wantHistory := []llm.Turn{
		{Speaker: llm.SpeakerAssistant, Text: "Hey, what do we call you?"},
		{Speaker: llm.SpeakerUser, Text: "I'm Sarah, a backend dev in NYC"},
		{Speaker: llm.SpeakerAssistant, Text: reply.Text},
	}
	if diff := cmp.Diff(wantHistory, sess.CanonicalHistory()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	wantCalls := []string{"create", "append:assistant", "append:user", "append:assistant", "merge"}
	if diff := cmp.Diff(wantCalls, store.calls); diff != "" {
		t.Errorf("store calls mismatch (-want +got):\n%s", diff)
	}
}

func TestAnswer_Completion(t *testing.T) {
	caller := &stubCaller{results: []*llm.Result{{
		Extracted: map[string]string{
			fields.Name:             "Sarah",
			fields.Role:             "Backend Developer",
			fields.ExperienceLevel:  "Mid-level",
			fields.Location:         "NYC",
			fields.StartupStage:     "Growth",
			fields.ExtraPreferences: "Fintech",
		},
		Reply:      fields.CompletionMessage,
		IsComplete: true,
	}}}
	notifier := &recordingNotifier{}
	svc, _ := newTestService(caller, WithNotifier(notifier))
	ctx := context.Background()

	start, err := svc.Start(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	reply, err := svc.Answer(ctx, start.SessionID, "everything at once")
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}

	if !reply.IsComplete {
		t.Fatal("IsComplete = false, want true")
	}
	if reply.Text != fields.CompletionMessage {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.CompletionMessage != fields.CompletionAnimation {
		t.Errorf("CompletionMessage = %q", reply.CompletionMessage)
	}
	if len(reply.Profile) != 6 {
		t.Errorf("Profile = %v, want 6 fields", reply.Profile)
	}

	if len(notifier.sessions) != 1 {
		t.Fatalf("notifier called %d times, want 1", len(notifier.sessions))
	}
	if got := notifier.sessions[0]; !got.Completed() || got.CompletedAt.IsZero() {
		t.Errorf("notified session = %+v, want completed", got)
	}

	if _, err := svc.Answer(ctx, start.SessionID, "one more thing"); !errors.Is(err, ErrSessionCompleted) {
		t.Errorf("Answer() after completion error = %v, want ErrSessionCompleted", err)
	}
	if len(caller.histories) != 1 {
		t.Errorf("provider called %d times, want 1", len(caller.histories))
	}
}

func TestAnswer_NotifierErrorIgnored(t *testing.T) {
	caller := &stubCaller{results: []*llm.Result{{
		Extracted:  map[string]string{},
		Reply:      fields.CompletionMessage,
		IsComplete: true,
	}}}
	notifier := &recordingNotifier{err: errors.New("broker down")}
	svc, _ := newTestService(caller, WithNotifier(notifier))
	ctx := context.Background()

	start, err := svc.Start(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	reply, err := svc.Answer(ctx, start.SessionID, "done")
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	if !reply.IsComplete {
		t.Error("IsComplete = false, want true")
	}
}

func TestAnswer_Fallback(t *testing.T) {
	caller := &stubCaller{results: []*llm.Result{llm.Fallback()}}
	svc, store := newTestService(caller)
	ctx := context.Background()

	start, err := svc.Start(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	reply, err := svc.Answer(ctx, start.SessionID, "Sarah")
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	if !reply.Fallback || reply.IsComplete {
		t.Errorf("reply = %+v, want fallback", reply)
	}
	if reply.Text != llm.FallbackReply {
		t.Errorf("Text = %q", reply.Text)
	}

	sess, err := svc.Session(ctx, start.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Profile) != 0 {
		t.Errorf("profile = %v, want empty", sess.Profile)
	}
	if len(sess.History) != 3 {
		t.Errorf("history has %d turns, want 3", len(sess.History))
	}
	for _, c := range store.calls {
		if c == "merge" || c == "complete" {
			t.Errorf("unexpected store call %q", c)
		}
	}
}

func TestAnswer_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(&stubCaller{results: []*llm.Result{{Reply: "ok"}}})
	start, err := svc.Start(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		id      string
		answer  string
		wantErr error
	}{
		{"malformed id", "not-a-uuid", "hi", ErrInvalidSessionID},
		{"empty id", "", "hi", ErrInvalidSessionID},
		{"unknown id", uuid.NewString(), "hi", ErrSessionNotFound},
		{"empty answer", start.SessionID, "", ErrEmptyAnswer},
		{"blank answer", start.SessionID, " \t\n", ErrEmptyAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Answer(ctx, tt.id, tt.answer)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Answer() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAnswer_ConfigurationError(t *testing.T) {
	cfgErr := &llm.ConfigurationError{Provider: "gemini", Reason: "no API key"}
	svc, store := newTestService(&stubCaller{err: cfgErr})
	ctx := context.Background()

	start, err := svc.Start(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	before := len(store.calls)

	_, err = svc.Answer(ctx, start.SessionID, "Sarah")
	if !llm.IsConfigurationError(err) {
		t.Fatalf("Answer() error = %v, want ConfigurationError", err)
	}
	if len(store.calls) != before {
		t.Errorf("store written after configuration error: %v", store.calls[before:])
	}
}

func TestSession_Errors(t *testing.T) {
	svc, _ := newTestService(&stubCaller{})
	ctx := context.Background()

	if _, err := svc.Session(ctx, "nope"); !errors.Is(err, ErrInvalidSessionID) {
		t.Errorf("Session(nope) error = %v", err)
	}
	if _, err := svc.Session(ctx, uuid.NewString()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Session(unknown) error = %v", err)
	}
}
