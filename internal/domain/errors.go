package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer. Wrap these with %w (or via
// NewDomainError) so callers can match with errors.Is.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrUnknownAgentType = fmt.Errorf("unknown agent type")
	ErrPRNotFound       = fmt.Errorf("pull request not found")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrBusClosed        = fmt.Errorf("message bus is closed")
	ErrStopped          = fmt.Errorf("coordinator is stopped")
)

// DomainError carries the operation name and a human-readable detail
// alongside the underlying sentinel.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Create")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// WrapOp annotates err with an operation prefix, preserving the chain.
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrPRNotFound)
}
