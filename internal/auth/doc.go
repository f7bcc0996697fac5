// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth owns the account lifecycle: registration, login, logout,
// email verification, and password-reset recovery.
//
// # Domain Types
//
// Domain types (Account, Session) should be created using their
// constructors:
//   - NewAccount - creates an Account with a validated username and password hash
//   - NewSession - creates a Session bound to an account projection and token hash
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Service
//
// Service coordinates all account operations against the injected
// collaborators: an AccountRepository (credential store), a SessionSink
// (where authenticated identity is recorded), an ActivityRecorder
// (append-only audit sink), and a Notifier (outbound mail, best-effort).
//
// Expected outcomes (bad credentials, duplicate identity, invalid or
// expired tokens, validation failures) are returned as typed errors and
// never logged as system errors. Store failures are wrapped with oops
// codes and surface to callers as generic system failures.
package auth
