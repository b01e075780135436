package provider

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
)

// AuthError means the provider rejected or is missing credentials. The
// orchestrator turns it into a credentialsRequired event.
type AuthError struct {
	Provider string
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransientError is an overload or server-side failure worth retrying.
type TransientError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s temporarily unavailable (HTTP %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// statusCode extracts the HTTP status from either SDK's API error.
func statusCode(err error) int {
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode
	}
	return 0
}

// classifyError maps SDK errors onto AuthError and TransientError. Other
// errors are returned unchanged.
func classifyError(providerID string, err error) error {
	if err == nil {
		return nil
	}
	if IsAuthError(err) || IsTransient(err) {
		return err
	}
	switch code := statusCode(err); code {
	case 401, 403:
		return &AuthError{Provider: providerID, Err: err}
	case 429, 500, 502, 503, 504, 529:
		return &TransientError{Provider: providerID, StatusCode: code, Err: err}
	}
	return err
}
