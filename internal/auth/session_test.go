// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
)

func testProfile() auth.Profile {
	return auth.Profile{
		ID:       ulid.Make(),
		Username: "grace_hopper",
		Email:    "grace@example.test",
		FullName: "Grace Hopper",
		Role:     "user",
	}
}

func TestNewSession(t *testing.T) {
	t.Run("creates session from profile", func(t *testing.T) {
		profile := testProfile()
		expires := time.Now().Add(time.Hour)

		s, err := auth.NewSession(profile, "token-hash", expires)
		require.NoError(t, err)
		assert.NotEqual(t, ulid.ULID{}, s.ID)
		assert.Equal(t, profile.ID, s.AccountID)
		assert.Equal(t, profile.Username, s.Username)
		assert.Equal(t, profile.Email, s.Email)
		assert.Equal(t, profile.Role, s.Role)
		assert.Equal(t, "token-hash", s.TokenHash)
		assert.Equal(t, expires, s.ExpiresAt)
		assert.False(t, s.LoginAt.IsZero())
	})

	t.Run("rejects zero account ID", func(t *testing.T) {
		profile := testProfile()
		profile.ID = ulid.ULID{}
		_, err := auth.NewSession(profile, "token-hash", time.Now().Add(time.Hour))
		assert.Error(t, err)
	})

	t.Run("rejects empty token hash", func(t *testing.T) {
		_, err := auth.NewSession(testProfile(), "", time.Now().Add(time.Hour))
		assert.Error(t, err)
	})

	t.Run("rejects zero expiry", func(t *testing.T) {
		_, err := auth.NewSession(testProfile(), "token-hash", time.Time{})
		assert.Error(t, err)
	})
}

func TestSession_IsExpired(t *testing.T) {
	s, err := auth.NewSession(testProfile(), "token-hash", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, s.IsExpired())

	s.ExpiresAt = time.Now().Add(-time.Minute)
	assert.True(t, s.IsExpired())
}
