// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
)

// createTestAccount inserts a verified active account and registers cleanup.
func createTestAccount(ctx context.Context, t *testing.T) *auth.Account {
	t.Helper()

	repo := postgres.NewAccountRepository(testPool)
	id := ulid.Make()
	account := &auth.Account{
		ID:            id,
		Username:      "user_" + id.String(),
		Email:         id.String() + "@example.test",
		PasswordHash:  "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		FullName:      "Test User",
		Phone:         "+1 555 0100",
		Institution:   "Test Institution",
		Role:          "user",
		IsActive:      true,
		EmailVerified: true,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(ctx, account))

	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id.String())
	})

	return account
}

func TestAccountRepository_Integration_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)

	t.Run("round trips all fields", func(t *testing.T) {
		account := createTestAccount(ctx, t)

		got, err := repo.GetByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, account.Username, got.Username)
		assert.Equal(t, account.Email, got.Email)
		assert.Equal(t, account.PasswordHash, got.PasswordHash)
		assert.Equal(t, account.FullName, got.FullName)
		assert.Equal(t, account.Phone, got.Phone)
		assert.Equal(t, account.Institution, got.Institution)
		assert.True(t, got.IsActive)
		assert.True(t, got.EmailVerified)
		assert.Nil(t, got.LastLoginAt)
	})

	t.Run("returns ErrNotFound for unknown id", func(t *testing.T) {
		_, err := repo.GetByID(ctx, ulid.Make())
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		account := createTestAccount(ctx, t)

		dup := *account
		dup.ID = ulid.Make()
		dup.Email = "different@example.test"
		err := repo.Create(ctx, &dup)
		assert.ErrorIs(t, err, auth.ErrDuplicateIdentity)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		account := createTestAccount(ctx, t)

		dup := *account
		dup.ID = ulid.Make()
		dup.Username = "user_" + dup.ID.String()
		err := repo.Create(ctx, &dup)
		assert.ErrorIs(t, err, auth.ErrDuplicateIdentity)
	})
}

func TestAccountRepository_Integration_IdentifierLookup(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)
	account := createTestAccount(ctx, t)

	t.Run("matches email", func(t *testing.T) {
		got, err := repo.GetActiveByIdentifier(ctx, account.Email)
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)
	})

	t.Run("matches username", func(t *testing.T) {
		got, err := repo.GetActiveByIdentifier(ctx, account.Username)
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)
	})

	t.Run("inactive account is invisible", func(t *testing.T) {
		_, err := testPool.Exec(ctx, `UPDATE accounts SET is_active = FALSE WHERE id = $1`, account.ID.String())
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = testPool.Exec(ctx, `UPDATE accounts SET is_active = TRUE WHERE id = $1`, account.ID.String())
		})

		_, err = repo.GetActiveByIdentifier(ctx, account.Email)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestAccountRepository_Integration_VerificationToken(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)

	id := ulid.Make()
	tokenHash := auth.HashToken("verification-" + id.String())
	account := &auth.Account{
		ID:                id,
		Username:          "user_" + id.String(),
		Email:             id.String() + "@example.test",
		PasswordHash:      "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		FullName:          "Unverified User",
		Phone:             "+1 555 0100",
		Institution:       "Test Institution",
		Role:              "user",
		IsActive:          true,
		EmailVerified:     false,
		VerificationToken: &tokenHash,
		CreatedAt:         time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(ctx, account))
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id.String())
	})

	t.Run("consume verifies exactly once", func(t *testing.T) {
		gotID, err := repo.ConsumeVerificationToken(ctx, tokenHash)
		require.NoError(t, err)
		assert.Equal(t, id, gotID)

		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.EmailVerified)
		assert.Nil(t, got.VerificationToken)

		// Replay affects zero rows
		_, err = repo.ConsumeVerificationToken(ctx, tokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestAccountRepository_Integration_ResetToken(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)
	account := createTestAccount(ctx, t)

	tokenHash := auth.HashToken("reset-" + account.ID.String())

	t.Run("set then consume swaps password", func(t *testing.T) {
		require.NoError(t, repo.SetResetToken(ctx, account.ID, tokenHash, time.Now().Add(time.Hour)))

		gotID, err := repo.ConsumeResetToken(ctx, tokenHash, "new-password-hash")
		require.NoError(t, err)
		assert.Equal(t, account.ID, gotID)

		got, err := repo.GetByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-password-hash", got.PasswordHash)
		assert.Nil(t, got.ResetToken)
		assert.Nil(t, got.ResetTokenExpires)
	})

	t.Run("expired token is not consumable", func(t *testing.T) {
		require.NoError(t, repo.SetResetToken(ctx, account.ID, tokenHash, time.Now().Add(-time.Minute)))

		_, err := repo.ConsumeResetToken(ctx, tokenHash, "another-hash")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestAccountRepository_Integration_RememberToken(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)
	account := createTestAccount(ctx, t)

	tokenHash := auth.HashToken("remember-" + account.ID.String())

	t.Run("set then lookup", func(t *testing.T) {
		require.NoError(t, repo.SetRememberToken(ctx, account.ID, tokenHash, time.Now().Add(auth.RememberTokenExpiry)))

		got, err := repo.GetActiveByRememberToken(ctx, tokenHash)
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)
	})

	t.Run("clear removes it", func(t *testing.T) {
		require.NoError(t, repo.ClearRememberToken(ctx, account.ID))

		_, err := repo.GetActiveByRememberToken(ctx, tokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("expired token is invisible", func(t *testing.T) {
		require.NoError(t, repo.SetRememberToken(ctx, account.ID, tokenHash, time.Now().Add(-time.Minute)))

		_, err := repo.GetActiveByRememberToken(ctx, tokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionRepository_Integration(t *testing.T) {
	ctx := context.Background()
	sessions := postgres.NewSessionRepository(testPool)
	account := createTestAccount(ctx, t)

	newSession := func(t *testing.T, expiresAt time.Time) *auth.Session {
		t.Helper()
		s, err := auth.NewSession(account.Profile(), auth.HashToken(ulid.Make().String()), expiresAt)
		require.NoError(t, err)
		require.NoError(t, sessions.Create(ctx, s))
		t.Cleanup(func() {
			_, _ = testPool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, s.ID.String())
		})
		return s
	}

	t.Run("create and fetch by token hash", func(t *testing.T) {
		s := newSession(t, time.Now().Add(auth.SessionTokenExpiry))

		got, err := sessions.GetByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, account.ID, got.AccountID)
		assert.Equal(t, account.Username, got.Username)
	})

	t.Run("delete removes the row", func(t *testing.T) {
		s := newSession(t, time.Now().Add(auth.SessionTokenExpiry))

		require.NoError(t, sessions.Delete(ctx, s.ID))
		_, err := sessions.GetByTokenHash(ctx, s.TokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete by account clears all sessions", func(t *testing.T) {
		s1 := newSession(t, time.Now().Add(auth.SessionTokenExpiry))
		s2 := newSession(t, time.Now().Add(auth.SessionTokenExpiry))

		require.NoError(t, sessions.DeleteByAccount(ctx, account.ID))

		_, err := sessions.GetByTokenHash(ctx, s1.TokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = sessions.GetByTokenHash(ctx, s2.TokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete expired counts only stale rows", func(t *testing.T) {
		_ = newSession(t, time.Now().Add(-time.Minute))
		live := newSession(t, time.Now().Add(auth.SessionTokenExpiry))

		n, err := sessions.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		_, err = sessions.GetByTokenHash(ctx, live.TokenHash)
		assert.NoError(t, err)
	})

	t.Run("cascade delete with account", func(t *testing.T) {
		s := newSession(t, time.Now().Add(auth.SessionTokenExpiry))

		_, err := testPool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, account.ID.String())
		require.NoError(t, err)

		_, err = sessions.GetByTokenHash(ctx, s.TokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestActivityRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewActivityRepository(testPool)
	account := createTestAccount(ctx, t)

	require.NoError(t, repo.Record(ctx, account.ID, auth.EventLogin, "logged in"))
	require.NoError(t, repo.Record(ctx, account.ID, auth.EventLogout, "logged out"))

	rows, err := testPool.Query(ctx, `
		SELECT event_type, message FROM activity_log
		WHERE account_id = $1 ORDER BY id
	`, account.ID.String())
	require.NoError(t, err)
	defer rows.Close()

	var events []string
	for rows.Next() {
		var eventType, message string
		require.NoError(t, rows.Scan(&eventType, &message))
		events = append(events, eventType)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{auth.EventLogin, auth.EventLogout}, events)
}
