// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// ActivityRepository implements auth.ActivityRecorder as an append-only
// PostgreSQL log. Rows are never updated or deleted by this repository.
type ActivityRepository struct {
	pool Querier
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(pool Querier) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// Record appends an activity event.
func (r *ActivityRepository) Record(ctx context.Context, accountID ulid.ULID, eventType, message string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO activity_log (id, account_id, event_type, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ulid.Make().String(), accountID.String(), eventType, message, time.Now())
	if err != nil {
		return oops.Code("ACTIVITY_RECORD_FAILED").
			With("operation", "insert activity event").
			With("account_id", accountID.String()).
			With("event_type", eventType).
			Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.ActivityRecorder = (*ActivityRepository)(nil)
