package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is a network or HTTP-level failure talking to a
// provider. StatusCode is zero when no response was received.
type TransportError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transport error (HTTP %d): %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: transport error: %s", e.Provider, msg)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsAuthFailure reports whether the provider rejected the credential.
// Retrying cannot fix these.
func (e *TransportError) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// MalformedResponseError means the provider answered but the text did
// not follow the JSON reply contract.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return "malformed response: " + e.Reason + ": " + e.Err.Error()
	}
	return "malformed response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ConfigurationError means the selected provider cannot be called at
// all: no credential, no endpoint, or an unknown provider name. It is
// never retried.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("llm provider %q misconfigured: %s", e.Provider, e.Reason)
}

// IsConfigurationError reports whether err is or wraps a
// [ConfigurationError].
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
