// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// DefaultPasswordMinLength applies when Policy leaves the minimum unset.
const DefaultPasswordMinLength = 8

// Policy carries the tunable account rules.
type Policy struct {
	// PasswordMinLength is the minimum accepted password length.
	PasswordMinLength int

	// RequireVerification controls whether new accounts must verify their
	// email before they can log in. When false, accounts are verified at
	// creation.
	RequireVerification bool
}

func (p Policy) passwordMinLength() int {
	if p.PasswordMinLength <= 0 {
		return DefaultPasswordMinLength
	}
	return p.PasswordMinLength
}

// dummyPasswordHash is used when an account doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service provides account lifecycle operations. It is stateless between
// invocations; all durable state lives in the injected repositories.
type Service struct {
	accounts AccountRepository
	sessions SessionSink
	hasher   PasswordHasher
	activity ActivityRecorder
	notifier Notifier
	policy   Policy
	logger   *slog.Logger
}

// NewService creates a Service. Activity and notifier may be nil, in which
// case the corresponding side effects are skipped.
func NewService(accounts AccountRepository, sessions SessionSink, hasher PasswordHasher, activity ActivityRecorder, notifier Notifier, policy Policy) (*Service, error) {
	return NewServiceWithLogger(accounts, sessions, hasher, activity, notifier, policy, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(accounts AccountRepository, sessions SessionSink, hasher PasswordHasher, activity ActivityRecorder, notifier Notifier, policy Policy, logger *slog.Logger) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("accounts repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("session sink is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("logger is required")
	}
	return &Service{
		accounts: accounts,
		sessions: sessions,
		hasher:   hasher,
		activity: activity,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
	}, nil
}

// RegisterResult reports the outcome of a successful registration.
type RegisterResult struct {
	AccountID            ulid.ULID
	VerificationRequired bool
}

// Register validates the input, creates the account, and dispatches the
// verification notification when policy requires it.
//
// Validation failures are returned as *ValidationError with a field→message
// map and no mutation. An existing username or email surfaces as
// ErrDuplicateIdentity, enforced by the store's unique constraints rather
// than a check-then-insert. Store failures are logged and wrapped with a
// system code.
func (s *Service) Register(ctx context.Context, input RegistrationInput) (*RegisterResult, error) {
	if verr := input.Validate(s.policy.passwordMinLength()); verr != nil {
		return nil, verr
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	verified := !s.policy.RequireVerification
	var verifyToken, verifyHash string
	if !verified {
		verifyToken, verifyHash, err = GenerateToken()
		if err != nil {
			return nil, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "generate verification token").
				Wrap(err)
		}
	}

	account, err := NewAccount(input, passwordHash, verifyHash, verified)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "build account").
			Wrap(err)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			return nil, ErrDuplicateIdentity
		}
		errutil.LogError(s.logger, "account insert failed", err)
		return nil, oops.Code("AUTH_SYSTEM").
			With("operation", "create account").
			Wrap(err)
	}

	s.recordActivity(ctx, account.ID, EventRegistered, "account registered")

	if !verified {
		s.notify(ctx, "verification", func(n Notifier) error {
			return n.SendVerification(ctx, account.Email, verifyToken)
		})
	}

	return &RegisterResult{
		AccountID:            account.ID,
		VerificationRequired: !verified,
	}, nil
}

// LoginResult carries the authenticated identity and its credentials.
// RememberToken is empty unless the caller asked for persistent login.
type LoginResult struct {
	Profile         Profile
	Session         *Session
	SessionToken    string
	RememberToken   string
	RememberExpires time.Time
}

// Login authenticates an identifier (email or username) against active
// accounts and establishes a session.
//
// An unknown identifier and a wrong password both return
// ErrInvalidCredentials; verification against a dummy hash keeps the two
// paths near-constant time. A correct password on an unverified account
// returns ErrEmailNotVerified.
func (s *Service) Login(ctx context.Context, identifier, password string, remember bool) (*LoginResult, error) {
	account, lookupErr := s.accounts.GetActiveByIdentifier(ctx, identifier)

	targetHash := dummyPasswordHash
	exists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			errutil.LogError(s.logger, "account lookup failed", lookupErr)
			return nil, oops.Code("AUTH_SYSTEM").
				With("operation", "get account by identifier").
				Wrap(lookupErr)
		}
	} else {
		targetHash = account.PasswordHash
		exists = true
	}

	// Always verify so response time does not depend on account existence
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !exists {
			return nil, ErrInvalidCredentials
		}
		errutil.LogError(s.logger, "password verification failed", verifyErr)
		return nil, oops.Code("AUTH_SYSTEM").
			With("operation", "verify password").
			Wrap(verifyErr)
	}
	if !exists || !valid {
		return nil, ErrInvalidCredentials
	}

	// The account's existence is already implied by a correct password, so
	// this failure may be specific.
	if !account.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	now := time.Now()
	if err := s.accounts.UpdateLastLogin(ctx, account.ID, now); err != nil {
		errutil.LogError(s.logger, "last login update failed", err)
		return nil, oops.Code("AUTH_SYSTEM").
			With("operation", "update last login").
			Wrap(err)
	}

	sessionToken, sessionHash, err := GenerateToken()
	if err != nil {
		return nil, oops.Code("AUTH_SYSTEM").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewSession(account.Profile(), sessionHash, now.Add(SessionTokenExpiry))
	if err != nil {
		return nil, oops.Code("AUTH_SYSTEM").
			With("operation", "build session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		errutil.LogError(s.logger, "session create failed", err)
		return nil, oops.Code("AUTH_SYSTEM").
			With("operation", "persist session").
			Wrap(err)
	}

	result := &LoginResult{
		Profile:      account.Profile(),
		Session:      session,
		SessionToken: sessionToken,
	}

	if remember {
		rememberToken, rememberHash, err := GenerateToken()
		if err != nil {
			return nil, oops.Code("AUTH_SYSTEM").
				With("operation", "generate remember token").
				Wrap(err)
		}
		expires := now.Add(RememberTokenExpiry)
		if err := s.accounts.SetRememberToken(ctx, account.ID, rememberHash, expires); err != nil {
			errutil.LogError(s.logger, "remember token store failed", err)
			return nil, oops.Code("AUTH_SYSTEM").
				With("operation", "store remember token").
				Wrap(err)
		}
		result.RememberToken = rememberToken
		result.RememberExpires = expires
	}

	s.recordActivity(ctx, account.ID, EventLogin, "logged in")

	return result, nil
}

// LoginWithRememberToken re-establishes a session from a remember token
// without a password. The token stays valid until its expiry or logout.
func (s *Service) LoginWithRememberToken(ctx context.Context, token string) (*LoginResult, error) {
	if token == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.GetActiveByRememberToken(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		errutil.LogError(s.logger, "remember token lookup failed", err)
		return nil, oops.Code("AUTH_SYSTEM").
			With("operation", "get account by remember token").
			Wrap(err)
	}
	if !account.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	now := time.Now()
	if err := s.accounts.UpdateLastLogin(ctx, account.ID, now); err != nil {
		errutil.LogError(s.logger, "last login update failed", err)
		return nil, oops.Code("AUTH_SYSTEM").
			With("operation", "update last login").
			Wrap(err)
	}

	sessionToken, sessionHash, err := GenerateToken()
	if err != nil {
		return nil, oops.Code("AUTH_SYSTEM").
			With("operation", "generate session token").
			Wrap(err)
	}
	session, err := NewSession(account.Profile(), sessionHash, now.Add(SessionTokenExpiry))
	if err != nil {
		return nil, oops.Code("AUTH_SYSTEM").
			With("operation", "build session").
			Wrap(err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		errutil.LogError(s.logger, "session create failed", err)
		return nil, oops.Code("AUTH_SYSTEM").
			With("operation", "persist session").
			Wrap(err)
	}

	s.recordActivity(ctx, account.ID, EventLogin, "logged in via remember token")

	return &LoginResult{
		Profile:      account.Profile(),
		Session:      session,
		SessionToken: sessionToken,
	}, nil
}

// Logout destroys the session identified by the token and clears the
// account's stored remember token so a stolen remember cookie cannot
// outlive an explicit logout.
func (s *Service) Logout(ctx context.Context, sessionToken string) error {
	session, err := s.lookupSession(ctx, sessionToken)
	if err != nil {
		return err
	}

	s.recordActivity(ctx, session.AccountID, EventLogout, "logged out")

	if err := s.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
		errutil.LogError(s.logger, "session delete failed", err)
		return oops.Code("AUTH_SYSTEM").
			With("operation", "delete session").
			Wrap(err)
	}

	if err := s.accounts.ClearRememberToken(ctx, session.AccountID); err != nil && !errors.Is(err, ErrNotFound) {
		errutil.LogError(s.logger, "remember token clear failed", err)
		return oops.Code("AUTH_SYSTEM").
			With("operation", "clear remember token").
			Wrap(err)
	}

	return nil
}

// IsLoggedIn reports whether the token identifies a live session.
func (s *Service) IsLoggedIn(ctx context.Context, sessionToken string) bool {
	_, err := s.lookupSession(ctx, sessionToken)
	return err == nil
}

// CurrentUser re-reads the account behind a live session, filtered to
// active accounts. Returns ErrNotFound when the session is stale or the
// account has since been deactivated or removed.
func (s *Service) CurrentUser(ctx context.Context, sessionToken string) (*Profile, error) {
	session, err := s.lookupSession(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetActiveByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		errutil.LogError(s.logger, "current user lookup failed", err)
		return nil, oops.Code("AUTH_SYSTEM").
			With("operation", "get account by id").
			Wrap(err)
	}

	profile := account.Profile()
	return &profile, nil
}

// VerifyEmail consumes a verification token. The store performs a single
// conditional update (token matches AND not yet verified), so a replayed
// token fails: exactly one call per token ever succeeds.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return ErrTokenInvalid
	}

	accountID, err := s.accounts.ConsumeVerificationToken(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTokenInvalid
		}
		errutil.LogError(s.logger, "verification token consume failed", err)
		return oops.Code("AUTH_SYSTEM").
			With("operation", "consume verification token").
			Wrap(err)
	}

	s.logger.Info("email verified", "account_id", accountID.String())
	return nil
}

// RequestPasswordReset issues a reset token for the active account with the
// given email. The outcome is identical whether or not the account exists,
// so the endpoint cannot be used to probe for registered addresses; the
// notification itself is best-effort.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.accounts.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Pretend success to prevent email enumeration
			return nil
		}
		errutil.LogError(s.logger, "reset request lookup failed", err)
		return oops.Code("AUTH_SYSTEM").
			With("operation", "get account by email").
			Wrap(err)
	}

	token, hash, err := GenerateToken()
	if err != nil {
		return oops.Code("AUTH_SYSTEM").
			With("operation", "generate reset token").
			Wrap(err)
	}

	if err := s.accounts.SetResetToken(ctx, account.ID, hash, time.Now().Add(ResetTokenExpiry)); err != nil {
		errutil.LogError(s.logger, "reset token store failed", err)
		return oops.Code("AUTH_SYSTEM").
			With("operation", "store reset token").
			Wrap(err)
	}

	s.notify(ctx, "password reset", func(n Notifier) error {
		return n.SendPasswordReset(ctx, account.Email, token)
	})

	return nil
}

// ResetPassword sets a new password using a reset token. The store performs
// a single conditional update (token matches AND unexpired AND active), so
// an expired or consumed token fails even if its value still matches.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrTokenInvalid
	}
	if len(newPassword) < s.policy.passwordMinLength() {
		return &ValidationError{Fields: map[string]string{
			"password": fmt.Sprintf("Password must be at least %d characters", s.policy.passwordMinLength()),
		}}
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_SYSTEM").
			With("operation", "hash password").
			Wrap(err)
	}

	accountID, err := s.accounts.ConsumeResetToken(ctx, HashToken(token), passwordHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTokenInvalid
		}
		errutil.LogError(s.logger, "reset token consume failed", err)
		return oops.Code("AUTH_SYSTEM").
			With("operation", "consume reset token").
			Wrap(err)
	}

	s.recordActivity(ctx, accountID, EventPasswordReset, "password reset")

	return nil
}

// lookupSession resolves a session token to a live session.
func (s *Service) lookupSession(ctx context.Context, sessionToken string) (*Session, error) {
	if sessionToken == "" {
		return nil, ErrNotFound
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashToken(sessionToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		errutil.LogError(s.logger, "session lookup failed", err)
		return nil, oops.Code("AUTH_SYSTEM").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	if session.IsExpired() {
		return nil, ErrNotFound
	}
	return session, nil
}

// recordActivity appends an audit event, logging failures instead of
// surfacing them.
func (s *Service) recordActivity(ctx context.Context, accountID ulid.ULID, eventType, message string) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, accountID, eventType, message); err != nil {
		errutil.LogWarn(s.logger, "activity record failed", err)
	}
}

// notify dispatches a notification, logging failures instead of surfacing
// them.
func (s *Service) notify(ctx context.Context, kind string, send func(Notifier) error) {
	if s.notifier == nil {
		return
	}
	if err := send(s.notifier); err != nil {
		errutil.LogWarn(s.logger, kind+" notification failed", err)
	}
}
