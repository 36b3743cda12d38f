package extraction

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError means the external source cannot be addressed; no
// connection was attempted.
type ConfigurationError struct {
	Missing []string
	reason  error
}

func (e ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("external source not configured: missing %s", strings.Join(e.Missing, ", "))
	}
	if e.reason != nil {
		return "external source not configured: " + e.reason.Error()
	}
	return "external source not configured"
}

func (e ConfigurationError) Unwrap() error {
	return e.reason
}

func IsConfigurationError(err error) bool {
	var ce ConfigurationError
	return errors.As(err, &ce)
}

// ConnectionError covers an unreachable source and failures while querying it.
type ConnectionError struct {
	Op     string
	Target string
	reason error
}

func (e ConnectionError) Error() string {
	return fmt.Sprintf("external source %s (%s): %v", e.Op, e.Target, e.reason)
}

func (e ConnectionError) Unwrap() error {
	return e.reason
}

func IsConnectionError(err error) bool {
	var ce ConnectionError
	return errors.As(err, &ce)
}
