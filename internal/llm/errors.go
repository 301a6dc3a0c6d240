package llm

import (
	"fmt"
	"unicode/utf8"
)

// ValidationError reports a malformed or incomplete inbound request.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return "llm: invalid request: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// UpstreamError is a non-success answer from the provider. Body is kept verbatim.
type UpstreamError struct {
	Provider   string
	Label      string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("llm: upstream %s returned %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 200))
}

// TransportError means the provider could not be reached or did not answer in time.
type TransportError struct {
	Provider string
	Kind     string // one of the Transport* constants
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm: request to %s failed (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func invalidRequest(reason string, err error) *ValidationError {
	return &ValidationError{Reason: reason, Err: err}
}

// truncate limits string length for logging without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
