package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	events []string
}

func (f *fakeRecorder) Record(_ context.Context, _ ulid.ULID, eventType, _ string) error {
	f.events = append(f.events, eventType)
	return nil
}

type fakeNotifier struct {
	err error
}

func (f *fakeNotifier) SendVerification(context.Context, string, string) error {
	return f.err
}

func (f *fakeNotifier) SendPasswordReset(context.Context, string, string) error {
	return f.err
}

func TestCountingRecorder_CountsAndDelegates(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	inner := &fakeRecorder{}
	rec := NewCountingRecorder(inner, metrics)

	id := ulid.Make()

	require.NoError(t, rec.Record(context.Background(), id, "user_login", "logged in"))
	require.NoError(t, rec.Record(context.Background(), id, "user_login", "logged in"))
	require.NoError(t, rec.Record(context.Background(), id, "user_logout", "logged out"))

	assert.Equal(t, []string{"user_login", "user_login", "user_logout"}, inner.events)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.AuthEventsTotal.WithLabelValues("user_login")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthEventsTotal.WithLabelValues("user_logout")))
}

func TestCountingNotifier_CountsOnlyFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	ok := NewCountingNotifier(&fakeNotifier{}, metrics)
	require.NoError(t, ok.SendVerification(context.Background(), "a@b.test", "token"))
	require.NoError(t, ok.SendPasswordReset(context.Background(), "a@b.test", "token"))

	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.NotifyFailures.WithLabelValues("verification")))

	failing := NewCountingNotifier(&fakeNotifier{err: errors.New("smtp down")}, metrics)
	assert.Error(t, failing.SendVerification(context.Background(), "a@b.test", "token"))
	assert.Error(t, failing.SendPasswordReset(context.Background(), "a@b.test", "token"))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.NotifyFailures.WithLabelValues("verification")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.NotifyFailures.WithLabelValues("password_reset")))
}
