// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Activity event types recorded by the Service.
const (
	EventRegistered    = "user_registered"
	EventLogin         = "user_login"
	EventLogout        = "user_logout"
	EventPasswordReset = "password_reset"
)

// ActivityRecorder is an append-only sink for account activity events.
// Recording is best-effort from the Service's perspective: failures are
// logged, never surfaced to the caller.
type ActivityRecorder interface {
	Record(ctx context.Context, accountID ulid.ULID, eventType, message string) error
}

// Notifier delivers outbound account mail. Both calls are fire-and-forget
// from the Service's perspective: a delivery failure never fails the
// operation that triggered it.
type Notifier interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}
