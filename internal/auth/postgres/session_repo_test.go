// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
)

var sessionColumnNames = []string{
	"id", "account_id", "username", "email", "full_name", "role",
	"token_hash", "login_at", "expires_at",
}

func testSession() *auth.Session {
	return &auth.Session{
		ID:        ulid.Make(),
		AccountID: ulid.Make(),
		Username:  "ada_lovelace",
		Email:     "ada@example.test",
		FullName:  "Ada Lovelace",
		Role:      "user",
		TokenHash: "token-hash",
		LoginAt:   time.Now().UTC().Truncate(time.Microsecond),
		ExpiresAt: time.Now().Add(auth.SessionTokenExpiry).UTC().Truncate(time.Microsecond),
	}
}

func TestSessionRepository_Create(t *testing.T) {
	t.Run("successful insert", func(t *testing.T) {
		mock := newMockPool(t)
		s := testSession()

		mock.ExpectExec(`INSERT INTO sessions`).
			WithArgs(
				s.ID.String(), s.AccountID.String(), s.Username, s.Email,
				s.FullName, s.Role, s.TokenHash, s.LoginAt, s.ExpiresAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewSessionRepository(mock)
		assert.NoError(t, repo.Create(context.Background(), s))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error is wrapped", func(t *testing.T) {
		mock := newMockPool(t)
		s := testSession()

		mock.ExpectExec(`INSERT INTO sessions`).
			WithArgs(
				s.ID.String(), s.AccountID.String(), s.Username, s.Email,
				s.FullName, s.Role, s.TokenHash, s.LoginAt, s.ExpiresAt,
			).
			WillReturnError(errors.New("connection refused"))

		repo := NewSessionRepository(mock)
		err := repo.Create(context.Background(), s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionRepository_GetByTokenHash(t *testing.T) {
	t.Run("returns matching session", func(t *testing.T) {
		mock := newMockPool(t)
		s := testSession()

		mock.ExpectQuery(`SELECT (.+) FROM sessions`).
			WithArgs(s.TokenHash).
			WillReturnRows(pgxmock.NewRows(sessionColumnNames).AddRow(
				s.ID.String(), s.AccountID.String(), s.Username, s.Email,
				s.FullName, s.Role, s.TokenHash, s.LoginAt, s.ExpiresAt,
			))

		repo := NewSessionRepository(mock)
		got, err := repo.GetByTokenHash(context.Background(), s.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, s.AccountID, got.AccountID)
		assert.Equal(t, s.Username, got.Username)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows maps to ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)

		mock.ExpectQuery(`SELECT (.+) FROM sessions`).
			WithArgs("unknown-hash").
			WillReturnRows(pgxmock.NewRows(sessionColumnNames))

		repo := NewSessionRepository(mock)
		_, err := repo.GetByTokenHash(context.Background(), "unknown-hash")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionRepository_Delete(t *testing.T) {
	id := ulid.Make()

	t.Run("deletes existing session", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE id`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		repo := NewSessionRepository(mock)
		assert.NoError(t, repo.Delete(context.Background(), id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows maps to ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE id`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		repo := NewSessionRepository(mock)
		assert.ErrorIs(t, repo.Delete(context.Background(), id), auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionRepository_DeleteByAccount(t *testing.T) {
	accountID := ulid.Make()

	t.Run("no error when nothing matches", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE account_id`).
			WithArgs(accountID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		repo := NewSessionRepository(mock)
		assert.NoError(t, repo.DeleteByAccount(context.Background(), accountID))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	repo := NewSessionRepository(mock)
	n, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
