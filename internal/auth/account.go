// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// DefaultRole is assigned to accounts that register through the public flow.
const DefaultRole = "user"

// usernameRegex matches usernames containing only letters, numbers, and
// underscores.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// phoneRegex matches phone numbers containing digits, +, -, spaces, and
// parentheses.
var phoneRegex = regexp.MustCompile(`^[0-9+\-\s()]+$`)

// Account represents a registered account and its credential state.
// Token fields hold SHA-256 hashes, never the plaintext values.
type Account struct {
	ID                ulid.ULID
	Username          string
	Email             string
	PasswordHash      string
	FullName          string
	Phone             string
	Institution       string
	Role              string
	IsActive          bool
	EmailVerified     bool
	VerificationToken *string
	ResetToken        *string
	ResetTokenExpires *time.Time
	RememberToken     *string
	RememberExpires   *time.Time
	CreatedAt         time.Time
	LastLoginAt       *time.Time
}

// Profile is the sanitized projection of an Account handed to callers.
// It never carries the password hash or any token material.
type Profile struct {
	ID       ulid.ULID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
}

// Profile returns the sanitized projection of the account.
func (a *Account) Profile() Profile {
	return Profile{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
		FullName: a.FullName,
		Role:     a.Role,
	}
}

// NewAccount creates a validated, inactive-token Account ready for insert.
// The password hash must already be produced by a PasswordHasher; the
// verification token hash may be empty when verification is not required.
func NewAccount(input RegistrationInput, passwordHash, verificationTokenHash string, verified bool) (*Account, error) {
	if err := ValidateUsername(input.Username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_EMPTY_HASH").Errorf("password hash cannot be empty")
	}

	a := &Account{
		ID:            ulid.Make(),
		Username:      input.Username,
		Email:         input.Email,
		PasswordHash:  passwordHash,
		FullName:      input.FullName,
		Phone:         input.Phone,
		Institution:   input.Institution,
		Role:          DefaultRole,
		IsActive:      true,
		EmailVerified: verified,
		CreatedAt:     time.Now(),
	}
	if !verified {
		if verificationTokenHash == "" {
			return nil, oops.Code("AUTH_EMPTY_TOKEN").Errorf("verification token hash required for unverified account")
		}
		a.VerificationToken = &verificationTokenHash
	}
	return a, nil
}

// ValidateUsername validates a username against rules.
// Username requirements:
//   - Length: MinUsernameLength to MaxUsernameLength characters
//   - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username may contain only letters, numbers, and underscores")
	}
	return nil
}

// RegistrationInput carries the untrusted registration form fields.
type RegistrationInput struct {
	FullName        string
	Email           string
	Username        string
	Phone           string
	Institution     string
	Password        string
	ConfirmPassword string
	TermsAccepted   bool
}

// requiredFields maps field names to their human-readable labels, in the
// order the registration form presents them.
var requiredFields = []struct {
	name  string
	label string
}{
	{"full_name", "Full name"},
	{"email", "Email"},
	{"username", "Username"},
	{"phone", "Phone"},
	{"institution", "Institution"},
	{"password", "Password"},
	{"confirm_password", "Password confirmation"},
}

// Validate checks the registration input and accumulates failures into a
// field→message map instead of failing fast. A nil return means the input
// is acceptable.
func (in RegistrationInput) Validate(minPasswordLength int) *ValidationError {
	fields := map[string]string{}

	values := map[string]string{
		"full_name":        in.FullName,
		"email":            in.Email,
		"username":         in.Username,
		"phone":            in.Phone,
		"institution":      in.Institution,
		"password":         in.Password,
		"confirm_password": in.ConfirmPassword,
	}
	for _, f := range requiredFields {
		if values[f.name] == "" {
			fields[f.name] = f.label + " is required"
		}
	}

	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			fields["email"] = "Email format is invalid"
		}
	}

	if in.Username != "" {
		if err := ValidateUsername(in.Username); err != nil {
			fields["username"] = fmt.Sprintf("Username must be %d-%d characters of letters, numbers, and underscores", MinUsernameLength, MaxUsernameLength)
		}
	}

	if in.Password != "" {
		if len(in.Password) < minPasswordLength {
			fields["password"] = fmt.Sprintf("Password must be at least %d characters", minPasswordLength)
		}
		if in.ConfirmPassword != "" && in.Password != in.ConfirmPassword {
			fields["confirm_password"] = "Password confirmation does not match"
		}
	}

	if in.Phone != "" && !phoneRegex.MatchString(in.Phone) {
		fields["phone"] = "Phone number format is invalid"
	}

	if !in.TermsAccepted {
		fields["terms"] = "You must accept the terms and conditions"
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// AccountRepository manages account persistence. Implementations enforce
// uniqueness of username and email at the store level and perform token
// consumption as atomic conditional updates, never read-then-write.
type AccountRepository interface {
	// Create inserts a new account. Returns ErrDuplicateIdentity (wrapped)
	// when the username or email collides with an existing row.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID regardless of active state.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetActiveByID retrieves an active account by ID.
	GetActiveByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetActiveByIdentifier retrieves an active account whose email or
	// username exactly matches identifier.
	GetActiveByIdentifier(ctx context.Context, identifier string) (*Account, error)

	// GetActiveByEmail retrieves an active account by email.
	GetActiveByEmail(ctx context.Context, email string) (*Account, error)

	// GetActiveByRememberToken retrieves an active account whose remember
	// token hash matches and has not expired.
	GetActiveByRememberToken(ctx context.Context, tokenHash string) (*Account, error)

	// UpdateLastLogin records a successful login time.
	UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// SetRememberToken stores a remember token hash with its expiry,
	// replacing any previous one.
	SetRememberToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error

	// ClearRememberToken removes the stored remember token, if any.
	ClearRememberToken(ctx context.Context, id ulid.ULID) error

	// ConsumeVerificationToken atomically marks the matching unverified
	// account as verified and clears the token. Returns the account ID, or
	// ErrNotFound (wrapped) when no unverified account carries the token.
	ConsumeVerificationToken(ctx context.Context, tokenHash string) (ulid.ULID, error)

	// SetResetToken stores a reset token hash with its expiry, replacing
	// any previous one.
	SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error

	// ConsumeResetToken atomically sets the new password hash and clears
	// the reset token on the active account whose unexpired token matches.
	// Returns the account ID, or ErrNotFound (wrapped) when the token does
	// not match or has expired.
	ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string) (ulid.ULID, error)
}
