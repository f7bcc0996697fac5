// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func TestActivityRepository_Record(t *testing.T) {
	accountID := ulid.Make()

	t.Run("appends event row", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`INSERT INTO activity_log`).
			WithArgs(pgxmock.AnyArg(), accountID.String(), auth.EventLogin, "logged in", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewActivityRepository(mock)
		assert.NoError(t, repo.Record(context.Background(), accountID, auth.EventLogin, "logged in"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error is wrapped with context", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`INSERT INTO activity_log`).
			WithArgs(pgxmock.AnyArg(), accountID.String(), auth.EventLogout, "logged out", pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))

		repo := NewActivityRepository(mock)
		err := repo.Record(context.Background(), accountID, auth.EventLogout, "logged out")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "ACTIVITY_RECORD_FAILED")
		errutil.AssertErrorContext(t, err, "event_type", auth.EventLogout)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
