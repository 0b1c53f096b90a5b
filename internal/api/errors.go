// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

// Error variables for common service failures.
var (
	// ErrBusy indicates the service rejected the request because it is
	// already handling another one (HTTP 503). Chat requests retry this
	// automatically; other endpoints surface it directly.
	ErrBusy = errors.New("service busy")

	// ErrNotFound indicates the referenced conversation or resource
	// does not exist on the service (HTTP 404).
	ErrNotFound = errors.New("not found")

	// ErrBadRequest indicates the service rejected the request payload
	// (HTTP 4xx other than 404).
	ErrBadRequest = errors.New("bad request")

	// ErrServer indicates an internal service failure (HTTP 5xx other
	// than 503).
	ErrServer = errors.New("server error")
)

// =============================================================================
// TYPED ERRORS
// =============================================================================

// ServiceError carries the HTTP status and any error message the
// service returned alongside the mapped sentinel.
type ServiceError struct {
	Op         string // endpoint, e.g. "chat", "history"
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
}

// Is maps the status code onto the sentinel errors.
func (e *ServiceError) Is(target error) bool {
	switch target {
	case ErrBusy:
		return e.StatusCode == 503
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrBadRequest:
		return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 404
	case ErrServer:
		return e.StatusCode >= 500 && e.StatusCode != 503
	}
	return false
}

// StreamError is returned when a streamed reply fails partway through.
// The text received before the failure is preserved so callers can keep
// the partial transcript.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream interrupted after %d bytes: %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error { return e.Err }
