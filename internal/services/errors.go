package services

import (
	"errors"
	"strings"

	"github.com/cinequiz/apiserver/internal/store"
)

var (
	ErrMissingFields     = errors.New("All fields are required.")
	ErrPasswordMismatch  = errors.New("Passwords do not match.")
	ErrDuplicateEmail    = errors.New("A user with this email already exists.")
	ErrDuplicateUsername = errors.New("A user with this username already exists.")
	ErrInvalidRecord     = errors.New("A required field is missing or not properly set.")

	ErrInvalidCredentials = errors.New("No active account found with the given credentials")

	ErrMissingToken          = errors.New("Refresh token is required.")
	ErrInvalidToken          = errors.New("Token is invalid or expired")
	ErrTokenExpired          = errors.New("token is expired")
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenRevoked          = errors.New("token is blacklisted")
	ErrRevocationUnsupported = errors.New("Token blacklisting is not enabled.")

	ErrNegativePoints    = errors.New("points must not be negative")
	ErrInvalidGameResult = errors.New("invalid game result")
)

// WeakPasswordError carries every password policy violation found.
type WeakPasswordError struct {
	Violations []string
}

func (e *WeakPasswordError) Error() string {
	return strings.Join(e.Violations, " ")
}

// ErrorKind groups domain errors by how callers should react to them.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindConflict
	KindAuth
	KindNotFound
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindUnsupported:
		return "unsupported"
	default:
		return "internal"
	}
}

// KindOf classifies err. Anything unrecognised is KindInternal.
func KindOf(err error) ErrorKind {
	var weak *WeakPasswordError
	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &weak),
		errors.Is(err, ErrMissingFields),
		errors.Is(err, ErrPasswordMismatch),
		errors.Is(err, ErrInvalidRecord),
		errors.Is(err, ErrMissingToken),
		errors.Is(err, ErrNegativePoints),
		errors.Is(err, ErrInvalidGameResult):
		return KindValidation
	case errors.Is(err, ErrDuplicateEmail), errors.Is(err, ErrDuplicateUsername):
		return KindConflict
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrTokenRevoked):
		return KindAuth
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRevocationUnsupported):
		return KindUnsupported
	default:
		return KindInternal
	}
}
