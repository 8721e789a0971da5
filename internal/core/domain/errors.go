package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInitialization = errors.New("session initialization failed")
	ErrAuthentication = errors.New("authentication failed")
	ErrNavigation     = errors.New("navigation failed")
	ErrItem           = errors.New("item submission failed")
	ErrFinalize       = errors.New("finalize failed")
	ErrRecovery       = errors.New("text recovery failed")
	ErrInvalidInput   = errors.New("invalid input")
	ErrMissingColumn  = fmt.Errorf("%w: missing %s column", ErrInvalidInput, IdentifierColumn)
	ErrRunNotFound    = errors.New("run not found")
	ErrRunInProgress  = errors.New("run already in progress")
	ErrTemporary      = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
