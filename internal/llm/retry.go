package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Retry defaults.
const (
	DefaultMaxRetries      = 3
	DefaultRetryBaseDelay  = time.Second
	DefaultTemperature     = 0.7
	temperatureStepPerTry  = 0.1
)

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in
// the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real [SleepFunc].
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Orchestrator calls a [Provider] with bounded retry. Between attempts
// it waits baseDelay*2^attempt, and each attempt raises the temperature
// by 0.1. Transport and contract failures never escape: once attempts
// run out, or the provider rejects the credential, the caller gets
// [Fallback]. Only a [*ConfigurationError] is returned as an error.
type Orchestrator struct {
	provider     Provider
	systemPrompt func() string
	maxRetries   int
	baseDelay    time.Duration
	temperature  float64
	sleep        SleepFunc
	logger       *slog.Logger
}

// OrchestratorOption configures an [Orchestrator].
type OrchestratorOption func(*Orchestrator)

// WithMaxRetries sets the total number of attempts. Values below 1 are
// ignored.
func WithMaxRetries(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.maxRetries = n
		}
	}
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.baseDelay = d }
}

// WithTemperature sets the first-attempt temperature.
func WithTemperature(t float64) OrchestratorOption {
	return func(o *Orchestrator) { o.temperature = t }
}

// WithSleep replaces the backoff wait. Tests use this to record delays
// instead of sleeping.
func WithSleep(fn SleepFunc) OrchestratorOption {
	return func(o *Orchestrator) { o.sleep = fn }
}

// NewOrchestrator returns an orchestrator for provider. systemPrompt
// is called once per attempt; pass a cached function such as
// prompts.OnboardingSystem.
func NewOrchestrator(provider Provider, systemPrompt func() string, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		provider:     provider,
		systemPrompt: systemPrompt,
		maxRetries:   DefaultMaxRetries,
		baseDelay:    DefaultRetryBaseDelay,
		temperature:  DefaultTemperature,
		sleep:        Sleep,
		logger:       logger.With("provider", provider.Name()),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Call sends history to the provider, retrying transient failures. The
// returned result is never nil when err is nil; it is the fallback if
// every attempt failed.
func (o *Orchestrator) Call(ctx context.Context, history []Turn) (*Result, error) {
	var lastErr error

	for attempt := 0; attempt < o.maxRetries; attempt++ {
		temperature := o.temperature + float64(attempt)*temperatureStepPerTry

		o.logger.Info("calling provider",
			"attempt", attempt+1,
			"max_attempts", o.maxRetries,
			"temperature", temperature,
		)

		res, err := o.provider.Call(ctx, history, o.systemPrompt(), temperature)
		if err == nil {
			o.logger.Info("provider call succeeded",
				"attempt", attempt+1,
				"extracted", len(res.Extracted),
				"is_complete", res.IsComplete,
			)
			return res, nil
		}
		lastErr = err

		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			o.logger.Error("provider misconfigured, not retrying", "error", err)
			return nil, err
		}

		var te *TransportError
		if errors.As(err, &te) && te.IsAuthFailure() {
			o.logger.Error("authentication failed, not retrying",
				"status", te.StatusCode, "error", err)
			break
		}

		var me *MalformedResponseError
		if errors.As(err, &me) {
			o.logger.Warn("provider broke reply contract", "attempt", attempt+1, "error", err)
		} else {
			o.logger.Warn("provider call failed", "attempt", attempt+1, "error", err)
		}

		if attempt == o.maxRetries-1 {
			break
		}

		delay := o.baseDelay << attempt
		o.logger.Debug("backing off before retry", "delay", delay)
		if err := o.sleep(ctx, delay); err != nil {
			o.logger.Warn("retry abandoned, context done", "error", err)
			break
		}
	}

	o.logger.Error("all provider attempts failed, using fallback reply", "error", lastErr)
	return Fallback(), nil
}
