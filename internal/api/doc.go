// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP client for the document-chat service.
//
// The service exposes a small JSON API plus one streaming endpoint:
// POST /chat with stream=true returns raw UTF-8 text chunks with no
// framing, terminated only by EOF. StreamChat guarantees that callers
// never observe a multi-byte character split across two chunks.
//
// Busy responses (HTTP 503) on chat requests are retried a fixed number
// of times with a fixed delay; every other endpoint is single-attempt.
// All errors from the service map onto the sentinel errors in errors.go
// so callers can branch with errors.Is.
package api
