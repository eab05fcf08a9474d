package types

import (
	"github.com/pkg/errors"
)

// Error kinds returned by every public operation. Callers match them with
// errors.Is; the underlying external-capability message is always preserved
// in the chain.
var (
	ErrNotInitialized      = errors.New("authority not initialized")
	ErrNotFound            = errors.New("not found")
	ErrInvalidOwner        = errors.New("invalid owner address")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAlreadyRegistered   = errors.New("tool already registered")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrSignatureMismatch   = errors.New("signature mismatch")
	ErrCredentialExpired   = errors.New("session credential expired")
	ErrToolNotRegistered   = errors.New("tool not registered")
	ErrNotDelegatee        = errors.New("address is not a delegatee")
	ErrExecutionFailed     = errors.New("program execution failed")
)

type kindError struct {
	kind  error
	cause error
	op    string
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.op + ": " + e.kind.Error()
	}
	return e.op + ": " + e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.cause }

// WrapKind attaches a taxonomy kind to cause so that errors.Is(result, kind)
// holds while the original message stays visible verbatim.
func WrapKind(kind error, cause error, op string) error {
	return &kindError{kind: kind, cause: cause, op: op}
}

// NewKind builds a kind error without an underlying cause.
func NewKind(kind error, op string) error {
	return &kindError{kind: kind, op: op}
}
