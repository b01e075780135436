package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrTurnInFlight rejects a send, switch or clear while a turn is running.
	ErrTurnInFlight = errors.New("a conversation turn is already in progress")
	ErrNoProvider   = errors.New("no provider is connected")
	ErrEmptyMessage = errors.New("message is empty")
)

// ProviderNotInitializedError is returned when switching to a provider whose
// adapter has not been initialized with valid credentials.
type ProviderNotInitializedError struct {
	Provider string
}

func (e *ProviderNotInitializedError) Error() string {
	return fmt.Sprintf("provider %s is not initialized", e.Provider)
}
