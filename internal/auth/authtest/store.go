// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package authtest provides in-memory implementations of the auth
// repositories for tests. They mirror the Postgres store's semantics:
// unique username/email, active-only lookups, and atomic token
// consumption.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Accounts is an in-memory auth.AccountRepository.
type Accounts struct {
	mu       sync.Mutex
	accounts map[ulid.ULID]*auth.Account

	// FailWith makes every call return this error when set.
	FailWith error
}

// NewAccounts creates an empty account store.
func NewAccounts() *Accounts {
	return &Accounts{accounts: make(map[ulid.ULID]*auth.Account)}
}

func (m *Accounts) Create(_ context.Context, account *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	for _, a := range m.accounts {
		if a.Username == account.Username || a.Email == account.Email {
			return auth.ErrDuplicateIdentity
		}
	}
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

func (m *Accounts) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Accounts) GetActiveByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	a, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return nil, auth.ErrNotFound
	}
	return a, nil
}

func (m *Accounts) GetActiveByIdentifier(_ context.Context, identifier string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	for _, a := range m.accounts {
		if a.IsActive && (a.Email == identifier || a.Username == identifier) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *Accounts) GetActiveByEmail(_ context.Context, email string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	for _, a := range m.accounts {
		if a.IsActive && a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *Accounts) GetActiveByRememberToken(_ context.Context, tokenHash string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	for _, a := range m.accounts {
		if a.IsActive && a.RememberToken != nil && *a.RememberToken == tokenHash &&
			a.RememberExpires != nil && a.RememberExpires.After(time.Now()) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *Accounts) UpdateLastLogin(_ context.Context, id ulid.ULID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.LastLoginAt = &at
	return nil
}

func (m *Accounts) SetRememberToken(_ context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.RememberToken = &tokenHash
	a.RememberExpires = &expiresAt
	return nil
}

func (m *Accounts) ClearRememberToken(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.RememberToken = nil
	a.RememberExpires = nil
	return nil
}

func (m *Accounts) ConsumeVerificationToken(_ context.Context, tokenHash string) (ulid.ULID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return ulid.ULID{}, m.FailWith
	}
	for _, a := range m.accounts {
		if !a.EmailVerified && a.VerificationToken != nil && *a.VerificationToken == tokenHash {
			a.EmailVerified = true
			a.VerificationToken = nil
			return a.ID, nil
		}
	}
	return ulid.ULID{}, auth.ErrNotFound
}

func (m *Accounts) SetResetToken(_ context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.ResetToken = &tokenHash
	a.ResetTokenExpires = &expiresAt
	return nil
}

func (m *Accounts) ConsumeResetToken(_ context.Context, tokenHash, newPasswordHash string) (ulid.ULID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return ulid.ULID{}, m.FailWith
	}
	for _, a := range m.accounts {
		if a.IsActive && a.ResetToken != nil && *a.ResetToken == tokenHash &&
			a.ResetTokenExpires != nil && a.ResetTokenExpires.After(time.Now()) {
			a.PasswordHash = newPasswordHash
			a.ResetToken = nil
			a.ResetTokenExpires = nil
			return a.ID, nil
		}
	}
	return ulid.ULID{}, auth.ErrNotFound
}

// Get returns the stored account directly so tests can inspect and
// mutate persisted state.
func (m *Accounts) Get(id ulid.ULID) *auth.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id]
}

// Sessions is an in-memory auth.SessionSink.
type Sessions struct {
	mu       sync.Mutex
	sessions map[ulid.ULID]*auth.Session

	// FailWith makes every call return this error when set.
	FailWith error
}

// NewSessions creates an empty session sink.
func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[ulid.ULID]*auth.Session)}
}

func (m *Sessions) Create(_ context.Context, session *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *Sessions) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	for _, s := range m.sessions {
		if s.TokenHash == tokenHash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *Sessions) Delete(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	if _, ok := m.sessions[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *Sessions) DeleteByAccount(_ context.Context, accountID ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.AccountID == accountID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *Sessions) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.IsExpired() {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Count returns the number of live sessions.
func (m *Sessions) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Event is one recorded activity entry.
type Event struct {
	AccountID ulid.ULID
	Type      string
	Message   string
}

// Activity is an in-memory auth.ActivityRecorder.
type Activity struct {
	mu     sync.Mutex
	events []Event
}

func (m *Activity) Record(_ context.Context, accountID ulid.ULID, eventType, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{accountID, eventType, message})
	return nil
}

// Types returns the recorded event types in order.
func (m *Activity) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// Notifier captures sent notifications with their plaintext tokens.
type Notifier struct {
	mu            sync.Mutex
	verifications map[string]string
	resets        map[string]string

	// Err makes every send fail when set.
	Err error
}

// NewNotifier creates an empty capturing notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		verifications: make(map[string]string),
		resets:        make(map[string]string),
	}
}

func (m *Notifier) SendVerification(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.verifications[email] = token
	return nil
}

func (m *Notifier) SendPasswordReset(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.resets[email] = token
	return nil
}

// VerificationToken returns the last verification token sent to email.
func (m *Notifier) VerificationToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifications[email]
}

// ResetToken returns the last reset token sent to email.
func (m *Notifier) ResetToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets[email]
}
