package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cinequiz/apiserver/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{ErrMissingFields, KindValidation},
		{ErrPasswordMismatch, KindValidation},
		{&WeakPasswordError{Violations: []string{"x"}}, KindValidation},
		{ErrInvalidRecord, KindValidation},
		{ErrMissingToken, KindValidation},
		{ErrDuplicateEmail, KindConflict},
		{ErrDuplicateUsername, KindConflict},
		{ErrInvalidCredentials, KindAuth},
		{ErrInvalidToken, KindAuth},
		{ErrTokenExpired, KindAuth},
		{ErrTokenRevoked, KindAuth},
		{fmt.Errorf("wrapped: %w", ErrTokenMalformed), KindAuth},
		{store.ErrNotFound, KindNotFound},
		{ErrRevocationUnsupported, KindUnsupported},
		{errors.New("boom"), KindInternal},
		{nil, KindInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestWeakPasswordError(t *testing.T) {
	err := &WeakPasswordError{Violations: []string{"This password is too short.", "This password is too common."}}
	assert.Equal(t, "This password is too short. This password is too common.", err.Error())
	assert.Equal(t, "not_found", KindNotFound.String())
}
