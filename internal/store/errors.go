package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidRecord is returned when a write violates a NOT NULL or CHECK
// constraint.
var ErrInvalidRecord = errors.New("invalid record")

// ConflictField names the unique column a write collided on.
type ConflictField string

const (
	ConflictEmail    ConflictField = "email"
	ConflictUsername ConflictField = "username"
	ConflictUnknown  ConflictField = ""
)

// constraintFields maps unique constraint names from the migrations to the
// column they protect.
var constraintFields = map[string]ConflictField{
	"users_email_key":    ConflictEmail,
	"users_username_key": ConflictUsername,
}

// ConflictError is returned when a write violates a unique constraint.
type ConflictError struct {
	Field      ConflictField
	Constraint string
}

func (e *ConflictError) Error() string {
	if e.Field == ConflictUnknown {
		return fmt.Sprintf("unique constraint %q violated", e.Constraint)
	}
	return fmt.Sprintf("duplicate %s", e.Field)
}

// classifyError turns constraint violations reported by postgres into
// typed store errors. Other errors are returned unchanged.
func classifyError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch string(pqErr.Code) {
	case pgerrcode.UniqueViolation:
		return &ConflictError{
			Field:      constraintFields[pqErr.Constraint],
			Constraint: pqErr.Constraint,
		}
	case pgerrcode.NotNullViolation, pgerrcode.CheckViolation:
		return fmt.Errorf("%w: %s", ErrInvalidRecord, pqErr.Message)
	default:
		return err
	}
}

// isConstraintError reports whether err is one of the typed errors
// produced by classifyError.
func isConstraintError(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict) || errors.Is(err, ErrInvalidRecord)
}
