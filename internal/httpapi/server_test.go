// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/authtest"
	"github.com/gatehouse/gatehouse/internal/httpapi"
)

func newTestServer(t *testing.T) *httpapi.Server {
	t.Helper()

	svc, err := auth.NewService(authtest.NewAccounts(), authtest.NewSessions(), auth.NewArgon2idHasher(), nil, nil, auth.Policy{})
	require.NoError(t, err)

	handler := httpapi.NewHandler(svc, slog.Default(), false)
	return httpapi.NewServer("127.0.0.1:0", handler.Routes(httpapi.NewMetrics(prometheus.NewRegistry())))
}

func TestServer_StartServesAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	server := newTestServer(t)

	errCh, err := server.Start()
	require.NoError(t, err)

	addr := server.Addr()
	require.NotEmpty(t, addr)

	client := &http.Client{Transport: &http.Transport{}}
	defer client.CloseIdleConnections()

	resp, err := client.Get("http://" + addr + "/api/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var envelope struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NoError(t, resp.Body.Close())
	assert.False(t, envelope.Success)
	assert.Equal(t, "Not logged in", envelope.Message)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	// Channel closes without reporting an error
	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error channel to close")
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := newTestServer(t)

	_, err := server.Start()
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	}()

	_, err = server.Start()
	assert.Error(t, err)
}

func TestServer_StopWithoutStart(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, server.Stop(ctx))
}
