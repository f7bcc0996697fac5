// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session records an authenticated identity for subsequent requests. It is
// ephemeral server-side state held by the SessionSink, never a row on the
// accounts table, and is opaque to clients beyond its token.
type Session struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	Username  string
	Email     string
	FullName  string
	Role      string
	TokenHash string
	LoginAt   time.Time
	ExpiresAt time.Time
}

// NewSession creates a validated Session for the given account projection.
func NewSession(profile Profile, tokenHash string, expiresAt time.Time) (*Session, error) {
	if profile.ID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &Session{
		ID:        ulid.Make(),
		AccountID: profile.ID,
		Username:  profile.Username,
		Email:     profile.Email,
		FullName:  profile.FullName,
		Role:      profile.Role,
		TokenHash: tokenHash,
		LoginAt:   time.Now(),
		ExpiresAt: expiresAt,
	}, nil
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SessionSink records and destroys authenticated-identity state.
type SessionSink interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// Delete removes a session by ID.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByAccount removes all sessions for an account.
	DeleteByAccount(ctx context.Context, accountID ulid.ULID) error

	// DeleteExpired removes all expired sessions and returns the count of
	// deleted records.
	DeleteExpired(ctx context.Context) (int64, error)
}
