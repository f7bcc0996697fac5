// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package postgres provides PostgreSQL implementations of the auth
// repositories. All token consumption runs as single conditional UPDATEs
// whose affected-row count decides the outcome, so concurrent consumers of
// the same token see exactly one success.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// accountColumns is the select list shared by every account query.
const accountColumns = `id, username, email, password_hash, full_name, phone, institution,
role, is_active, email_verified, verification_token,
reset_token, reset_token_expires, remember_token, remember_token_expires,
created_at, last_login_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool Querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool Querier) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create inserts a new account. Uniqueness of username and email is
// enforced by the table's unique constraints; a violation surfaces as
// auth.ErrDuplicateIdentity without revealing which column collided.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, username, email, password_hash, full_name, phone, institution,
			role, is_active, email_verified, verification_token, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		account.ID.String(),
		account.Username,
		account.Email,
		account.PasswordHash,
		account.FullName,
		account.Phone,
		account.Institution,
		account.Role,
		account.IsActive,
		account.EmailVerified,
		account.VerificationToken,
		account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_DUPLICATE").
				Wrap(auth.ErrDuplicateIdentity)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("username", account.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID regardless of active state.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id.String())

	account, err := r.scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetActiveByID retrieves an active account by ID.
func (r *AccountRepository) GetActiveByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1 AND is_active
	`, id.String())

	account, err := r.scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_ACTIVE_FAILED").
			With("operation", "get active account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetActiveByIdentifier retrieves an active account whose email or username
// exactly matches identifier (case-sensitive).
func (r *AccountRepository) GetActiveByIdentifier(ctx context.Context, identifier string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE (email = $1 OR username = $1) AND is_active
	`, identifier)

	account, err := r.scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_IDENTIFIER_FAILED").
			With("operation", "get account by identifier").
			Wrap(err)
	}
	return account, nil
}

// GetActiveByEmail retrieves an active account by email.
func (r *AccountRepository) GetActiveByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1 AND is_active
	`, email)

	account, err := r.scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return account, nil
}

// GetActiveByRememberToken retrieves an active account whose remember token
// hash matches and has not expired.
func (r *AccountRepository) GetActiveByRememberToken(ctx context.Context, tokenHash string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE remember_token = $1 AND remember_token_expires > $2 AND is_active
	`, tokenHash, time.Now())

	account, err := r.scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_REMEMBER_FAILED").
			With("operation", "get account by remember token").
			Wrap(err)
	}
	return account, nil
}

// UpdateLastLogin records a successful login time.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET last_login_at = $2 WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_LAST_LOGIN_FAILED").
			With("operation", "update last login").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetRememberToken stores a remember token hash with its expiry, replacing
// any previous one.
func (r *AccountRepository) SetRememberToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET remember_token = $2, remember_token_expires = $3
		WHERE id = $1
	`, id.String(), tokenHash, expiresAt)
	if err != nil {
		return oops.Code("ACCOUNT_SET_REMEMBER_FAILED").
			With("operation", "set remember token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ClearRememberToken removes the stored remember token, if any.
func (r *AccountRepository) ClearRememberToken(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET remember_token = NULL, remember_token_expires = NULL
		WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("ACCOUNT_CLEAR_REMEMBER_FAILED").
			With("operation", "clear remember token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ConsumeVerificationToken atomically marks the matching unverified account
// as verified and clears the token. The WHERE clause carries the full
// condition, so a replayed token affects zero rows and maps to
// auth.ErrNotFound.
func (r *AccountRepository) ConsumeVerificationToken(ctx context.Context, tokenHash string) (ulid.ULID, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET email_verified = TRUE, verification_token = NULL
		WHERE verification_token = $1 AND NOT email_verified
		RETURNING id
	`, tokenHash)

	var idStr string
	if err := row.Scan(&idStr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ulid.ULID{}, oops.Code("ACCOUNT_TOKEN_NOT_FOUND").
				Wrap(auth.ErrNotFound)
		}
		return ulid.ULID{}, oops.Code("ACCOUNT_CONSUME_VERIFICATION_FAILED").
			With("operation", "consume verification token").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return ulid.ULID{}, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}
	return id, nil
}

// SetResetToken stores a reset token hash with its expiry, replacing any
// previous one.
func (r *AccountRepository) SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts SET reset_token = $2, reset_token_expires = $3
		WHERE id = $1 AND is_active
	`, id.String(), tokenHash, expiresAt)
	if err != nil {
		return oops.Code("ACCOUNT_SET_RESET_FAILED").
			With("operation", "set reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ConsumeResetToken atomically sets the new password hash and clears the
// reset token on the active account whose unexpired token matches. Expired
// or already-consumed tokens affect zero rows and map to auth.ErrNotFound.
func (r *AccountRepository) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string) (ulid.ULID, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET password_hash = $2, reset_token = NULL, reset_token_expires = NULL
		WHERE reset_token = $1 AND reset_token_expires > $3 AND is_active
		RETURNING id
	`, tokenHash, newPasswordHash, time.Now())

	var idStr string
	if err := row.Scan(&idStr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ulid.ULID{}, oops.Code("ACCOUNT_TOKEN_NOT_FOUND").
				Wrap(auth.ErrNotFound)
		}
		return ulid.ULID{}, oops.Code("ACCOUNT_CONSUME_RESET_FAILED").
			With("operation", "consume reset token").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return ulid.ULID{}, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}
	return id, nil
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *AccountRepository) scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr             string
		username          string
		email             string
		passwordHash      string
		fullName          string
		phone             string
		institution       string
		role              string
		isActive          bool
		emailVerified     bool
		verificationToken *string
		resetToken        *string
		resetExpires      *time.Time
		rememberToken     *string
		rememberExpires   *time.Time
		createdAt         time.Time
		lastLoginAt       *time.Time
	)

	err := row.Scan(
		&idStr,
		&username,
		&email,
		&passwordHash,
		&fullName,
		&phone,
		&institution,
		&role,
		&isActive,
		&emailVerified,
		&verificationToken,
		&resetToken,
		&resetExpires,
		&rememberToken,
		&rememberExpires,
		&createdAt,
		&lastLoginAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("operation", "scan account").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.Account{
		ID:                id,
		Username:          username,
		Email:             email,
		PasswordHash:      passwordHash,
		FullName:          fullName,
		Phone:             phone,
		Institution:       institution,
		Role:              role,
		IsActive:          isActive,
		EmailVerified:     emailVerified,
		VerificationToken: verificationToken,
		ResetToken:        resetToken,
		ResetTokenExpires: resetExpires,
		RememberToken:     rememberToken,
		RememberExpires:   rememberExpires,
		CreatedAt:         createdAt,
		LastLoginAt:       lastLoginAt,
	}, nil
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
