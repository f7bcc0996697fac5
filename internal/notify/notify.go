// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package notify delivers verification and password-reset mail. Delivery
// is best-effort: the auth service logs failures and carries on.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"net/url"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// verificationPath and resetPath are appended to the configured base URL
// when building links.
const (
	verificationPath = "/verify-email"
	resetPath        = "/reset-password"
)

// VerificationLink builds the link a recipient follows to verify their
// address.
func VerificationLink(baseURL, token string) string {
	return baseURL + verificationPath + "?token=" + url.QueryEscape(token)
}

// ResetLink builds the link a recipient follows to reset their password.
func ResetLink(baseURL, token string) string {
	return baseURL + resetPath + "?token=" + url.QueryEscape(token)
}

// LogNotifier writes the outbound links to the log instead of sending
// mail. Used in development and as the fallback when no SMTP host is
// configured.
type LogNotifier struct {
	baseURL string
	logger  *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(baseURL string, logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{baseURL: baseURL, logger: logger}
}

// SendVerification logs the verification link.
func (n *LogNotifier) SendVerification(_ context.Context, email, token string) error {
	n.logger.Info("verification mail (log delivery)",
		"email", email,
		"link", VerificationLink(n.baseURL, token),
	)
	return nil
}

// SendPasswordReset logs the reset link.
func (n *LogNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.logger.Info("password reset mail (log delivery)",
		"email", email,
		"link", ResetLink(n.baseURL, token),
	)
	return nil
}

// SMTPNotifier delivers mail through a plain SMTP relay.
type SMTPNotifier struct {
	addr    string // host:port
	from    string
	auth    smtp.Auth
	baseURL string

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier creates an SMTPNotifier. Username may be empty for
// relays that accept unauthenticated mail.
func NewSMTPNotifier(host string, port int, from, username, password, baseURL string) *SMTPNotifier {
	var a smtp.Auth
	if username != "" {
		a = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPNotifier{
		addr:    fmt.Sprintf("%s:%d", host, port),
		from:    from,
		auth:    a,
		baseURL: baseURL,
		send:    smtp.SendMail,
	}
}

// SendVerification mails the verification link.
func (n *SMTPNotifier) SendVerification(_ context.Context, email, token string) error {
	msg := buildMessage(n.from, email, "Verify your email address",
		"Welcome! Confirm your email address by opening this link:\r\n\r\n"+
			VerificationLink(n.baseURL, token)+"\r\n")
	if err := n.send(n.addr, n.auth, n.from, []string{email}, msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("kind", "verification").
			Wrap(err)
	}
	return nil
}

// SendPasswordReset mails the reset link.
func (n *SMTPNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	msg := buildMessage(n.from, email, "Reset your password",
		"A password reset was requested for your account. The link below is valid for one hour:\r\n\r\n"+
			ResetLink(n.baseURL, token)+"\r\n\r\n"+
			"If you did not request this, you can ignore this mail.\r\n")
	if err := n.send(n.addr, n.auth, n.from, []string{email}, msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("kind", "password_reset").
			Wrap(err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	return []byte(
		"From: " + from + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"\r\n" +
			body)
}

// Compile-time interface checks.
var (
	_ auth.Notifier = (*LogNotifier)(nil)
	_ auth.Notifier = (*SMTPNotifier)(nil)
)
