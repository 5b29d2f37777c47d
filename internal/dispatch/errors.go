package dispatch

import (
	"errors"
	"fmt"

	"github.com/mr1hm/guard-dispatch/internal/repository"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = repository.ErrNotFound
	ErrPermission     = errors.New("permission denied")
	ErrRaceLost       = errors.New("incident already assigned")
	ErrAlertClosed    = errors.New("alert no longer available")
	ErrNotAssignment  = errors.New("broadcast alerts cannot be answered")
	ErrGuardBusy      = errors.New("guard already holds an active assignment")
	ErrIncidentClosed = errors.New("incident already resolved")
)

// ValidationError rejects input before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
