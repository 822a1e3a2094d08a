package jenkins

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when a required connection parameter is missing or empty.
	ErrConfiguration = errors.New("configuration error")

	// ErrAuthentication is returned when the crumb issuer probe fails. Unreachable
	// servers and rejected credentials are reported the same way.
	ErrAuthentication = errors.New("cannot connect to jenkins or credentials are invalid")

	// ErrMalformedConfig is returned when a job's config.xml is not well-formed.
	ErrMalformedConfig = errors.New("malformed job config")

	// ErrInvalidInput is returned for tool arguments rejected before any network call.
	ErrInvalidInput = errors.New("invalid input")
)

// UpstreamError describes a failed Jenkins REST call. StatusCode is zero when
// the request never produced a response (timeout, connection refused, ...).
type UpstreamError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("jenkins request %s %s failed: %v", e.Method, e.URL, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("jenkins api returned status %d for %s %s", e.StatusCode, e.Method, e.URL)
	}
	return fmt.Sprintf("jenkins api returned status %d for %s %s: %s", e.StatusCode, e.Method, e.URL, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func missingParameter(name string) error {
	return fmt.Errorf("%w: missing parameter %s", ErrConfiguration, name)
}
