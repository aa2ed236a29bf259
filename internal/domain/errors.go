package domain

import (
	"errors"
	"fmt"
)

// Common domain errors.
var (
	ErrInvalidRecipe     = errors.New("invalid edit recipe")
	ErrReleased          = errors.New("media reference used after release")
	ErrCommitInFlight    = errors.New("a commit is already in flight")
	ErrSessionClosed     = errors.New("editor session closed")
	ErrSessionNotFound   = errors.New("editor session not found")
	ErrMediaUnavailable  = errors.New("media unavailable")
	ErrTransport         = errors.New("processing endpoint unreachable")
	ErrRemoteProcessing  = errors.New("remote processing failed")
	ErrStorageError      = errors.New("storage error")
	ErrDatabaseError     = errors.New("database error")
	ErrInvalidInput      = errors.New("invalid input")
	ErrHistoryDisabled   = errors.New("edit history disabled")
	ErrPublishNotEnabled = errors.New("publishing not configured")
)

// InvalidRecipeError is a local validation failure. It never reaches the network.
type InvalidRecipeError struct {
	Mode   string
	Reason string
}

func (e *InvalidRecipeError) Error() string {
	return fmt.Sprintf("invalid %s recipe: %s", e.Mode, e.Reason)
}

func (e *InvalidRecipeError) Is(target error) bool {
	return target == ErrInvalidRecipe
}

// TransportError wraps a network failure talking to the processing endpoint.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("processing request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// RemoteProcessingError represents a non-2xx or unusable response from the
// processing endpoint.
type RemoteProcessingError struct {
	StatusCode int
	Body       string
}

func (e *RemoteProcessingError) Error() string {
	return fmt.Sprintf("processing failed: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *RemoteProcessingError) Is(target error) bool {
	return target == ErrRemoteProcessing
}
