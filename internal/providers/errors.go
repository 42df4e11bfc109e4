package providers

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when a provider is invoked without the
	// credentials or endpoint it needs.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrEmptyModel is returned when a handle is requested for an empty model name.
	ErrEmptyModel = errors.New("model name is empty")
)

// UnknownProviderError reports a provider identifier outside the enumeration
// or absent from a registry.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Provider)
}

// ConstructionError reports a provider client that could not be built at
// startup, e.g. because its credential blob is malformed.
type ConstructionError struct {
	Provider ID
	Err      error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("%s: construct client: %v", e.Provider, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// InvocationError wraps any error returned by a provider client while
// producing a model handle.
type InvocationError struct {
	Provider ID
	Model    string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: model %q: %v", e.Provider, e.Model, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// UnsupportedCapabilityError is returned when a provider lacks the requested
// capability, e.g. embeddings on a chat-only backend.
type UnsupportedCapabilityError struct {
	Provider   ID
	Capability string
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("%s: %s is not supported", e.Provider, e.Capability)
}

// CheckModel returns ErrEmptyModel for an empty name.
func CheckModel(model string) error {
	if model == "" {
		return ErrEmptyModel
	}
	return nil
}
