package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrInvalidFilter        = errors.New("invalid filter")
	ErrSessionExpired       = errors.New("session expired")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrTransport            = errors.New("transport error")
	ErrMalformedResponse    = errors.New("malformed response")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrStreamBusy           = errors.New("stream subscription already running")
)

type UnknownProviderError struct {
	Key  ProviderKey
	Name string
}

func (e *UnknownProviderError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown provider %q", e.Name)
	}
	return fmt.Sprintf("unknown provider %s", e.Key)
}

func (e *UnknownProviderError) Is(target error) bool {
	return target == ErrUnknownProvider
}

type UnsupportedOperationError struct {
	Provider  ProviderKey
	Operation Operation
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("provider %s does not support %s", e.Provider, e.Operation)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

type InvalidFilterError struct {
	Filter string
	Value  string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid %s filter %q", e.Filter, e.Value)
}

func (e *InvalidFilterError) Is(target error) bool {
	return target == ErrInvalidFilter
}

// ProviderError attributes a failure to the provider and operation that produced it.
type ProviderError struct {
	Provider  ProviderKey
	Operation Operation
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// TransportError marks err as a failure of the external collaborator.
func TransportError(op string, err error) error {
	if errors.Is(err, ErrTransport) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// MalformedError reports a vendor payload that could not be mapped onto the canonical model.
func MalformedError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
