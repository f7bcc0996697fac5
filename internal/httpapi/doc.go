// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package httpapi exposes the auth service as a JSON-over-HTTP API.
//
// Every endpoint answers with the same envelope:
//
//	{"success": bool, "message": string, "data": {...}, "errors": {field: message}}
//
// Non-POST requests to POST endpoints get a method-not-allowed envelope,
// and unparsable bodies get a generic invalid-input envelope; neither
// reveals anything about internal state. Sessions and remember tokens are
// carried in HttpOnly cookies.
package httpapi
