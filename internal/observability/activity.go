// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package observability

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// CountingRecorder wraps an ActivityRecorder and counts each recorded
// event in the auth event metrics.
type CountingRecorder struct {
	next    auth.ActivityRecorder
	metrics *Metrics
}

// NewCountingRecorder decorates next with per-event counters.
func NewCountingRecorder(next auth.ActivityRecorder, metrics *Metrics) *CountingRecorder {
	return &CountingRecorder{next: next, metrics: metrics}
}

// Record counts the event, then delegates to the wrapped recorder.
func (r *CountingRecorder) Record(ctx context.Context, accountID ulid.ULID, eventType, message string) error {
	r.metrics.AuthEventsTotal.WithLabelValues(eventType).Inc()
	return r.next.Record(ctx, accountID, eventType, message)
}

// CountingNotifier wraps a Notifier and counts failed sends by kind.
type CountingNotifier struct {
	next    auth.Notifier
	metrics *Metrics
}

// NewCountingNotifier decorates next with failure counters.
func NewCountingNotifier(next auth.Notifier, metrics *Metrics) *CountingNotifier {
	return &CountingNotifier{next: next, metrics: metrics}
}

// SendVerification delegates and counts a failure under "verification".
func (n *CountingNotifier) SendVerification(ctx context.Context, email, token string) error {
	err := n.next.SendVerification(ctx, email, token)
	if err != nil {
		n.metrics.NotifyFailures.WithLabelValues("verification").Inc()
	}
	return err
}

// SendPasswordReset delegates and counts a failure under "password_reset".
func (n *CountingNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	err := n.next.SendPasswordReset(ctx, email, token)
	if err != nil {
		n.metrics.NotifyFailures.WithLabelValues("password_reset").Inc()
	}
	return err
}
