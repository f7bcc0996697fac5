// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for expected business outcomes. Callers distinguish these
// with errors.Is; anything else coming out of the Service is a system
// failure and carries an oops code.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateIdentity is returned when an account with the same
	// username or email already exists. Deliberately one error for both
	// fields so callers cannot tell which one collided.
	ErrDuplicateIdentity = errors.New("email or username already registered")

	// ErrInvalidCredentials covers both an unknown identifier and a wrong
	// password. The two cases must stay indistinguishable.
	ErrInvalidCredentials = errors.New("email/username or password incorrect")

	// ErrEmailNotVerified is returned when credentials are correct but the
	// account has not completed email verification.
	ErrEmailNotVerified = errors.New("please verify your email first")

	// ErrTokenInvalid is returned when a verification or reset token does
	// not match any account, was already consumed, or has expired.
	ErrTokenInvalid = errors.New("token invalid or expired")
)

// ValidationError carries field-level registration failures so a caller can
// target inline feedback. Fields maps field name to a human-readable
// message.
type ValidationError struct {
	Fields map[string]string
}

// Error returns the field messages joined in field-name order.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
