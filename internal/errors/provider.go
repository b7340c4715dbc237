// Package errors defines typed errors shared by the metadata providers.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrNotFound signals that a provider has no record for the request.
// Providers translate upstream 404s into this so callers can treat
// "no data" differently from transport failures.
var ErrNotFound = stdErrors.New("record not found")

// ProviderError represents an unexpected response from a provider API.
type ProviderError struct {
	Provider   string
	StatusCode int
	APIMessage string // error body from the upstream API if available
}

func (e *ProviderError) Error() string {
	if e.APIMessage != "" {
		return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.StatusCode, e.APIMessage)
	}
	return fmt.Sprintf("%s returned HTTP %d", e.Provider, e.StatusCode)
}

// NewProviderError creates a ProviderError for the given provider response.
func NewProviderError(provider string, statusCode int, apiMessage string) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: statusCode, APIMessage: apiMessage}
}

// IsProviderError checks if err is a ProviderError (even when wrapped).
func IsProviderError(err error) bool {
	var providerErr *ProviderError
	return stdErrors.As(err, &providerErr)
}
