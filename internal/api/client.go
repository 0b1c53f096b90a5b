// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultRetryAttempts is how many times a busy chat request is
	// tried before giving up.
	DefaultRetryAttempts = 3

	// DefaultRetryDelay is the fixed pause between busy retries.
	DefaultRetryDelay = 2 * time.Second

	// DefaultTimeout is the per-request timeout for non-streaming
	// endpoints.
	DefaultTimeout = 60 * time.Second
)

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the document-chat service.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	streamClient  *http.Client
	limiter       *rate.Limiter
	logger        *log.Logger
	retryAttempts int
	retryDelay    time.Duration
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		// Streaming responses stay open as long as the reply takes to
		// generate, so the stream client carries no overall timeout.
		streamClient:  &http.Client{},
		retryAttempts: DefaultRetryAttempts,
		retryDelay:    DefaultRetryDelay,
	}
}

// WithTimeout sets the per-request timeout for non-streaming endpoints.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithRetry configures the busy-retry policy for chat requests.
func (c *Client) WithRetry(attempts int, delay time.Duration) *Client {
	if attempts < 1 {
		attempts = 1
	}
	c.retryAttempts = attempts
	c.retryDelay = delay
	return c
}

// WithRateLimit caps outbound requests per second. Zero disables the
// limiter.
func (c *Client) WithRateLimit(rps float64) *Client {
	if rps <= 0 {
		c.limiter = nil
		return c
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	return c
}

// WithLogger sets a request logger. Each request is logged as method,
// path and status code; bodies are never logged.
func (c *Client) WithLogger(l *log.Logger) *Client {
	c.logger = l
	return c
}

// WithHTTPClient replaces the underlying HTTP clients. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string { return c.baseURL }

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// wait blocks on the rate limiter, if one is configured.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// logRequest records one completed request when a logger is set.
func (c *Client) logRequest(method, path string, status int) {
	if c.logger != nil {
		c.logger.Printf("%s %s -> %d", method, path, status)
	}
}

// serviceError drains the body looking for an error message and wraps
// the status into a ServiceError.
func serviceError(op string, resp *http.Response) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		if json.Unmarshal(body, &payload) == nil {
			msg = payload.Error
			if msg == "" {
				msg = payload.Message
			}
		}
	}
	return &ServiceError{Op: op, StatusCode: resp.StatusCode, Message: msg}
}

// postJSON sends a JSON body and decodes a JSON reply. Single attempt.
func (c *Client) postJSON(ctx context.Context, op, path string, body, out interface{}) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	c.logRequest(http.MethodPost, path, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return serviceError(op, resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// =============================================================================
// CHAT
// =============================================================================

// Chat performs a non-streamed chat request. The service answers with
// the full reply plus the conversation's assigned serial number; this
// is also the confirmatory call that follows a streamed exchange.
//
// Busy responses are retried up to the configured attempt count with a
// fixed delay between tries.
func (c *Client) Chat(ctx context.Context, chatReq ChatRequest) (*ChatResult, error) {
	chatReq.Stream = false

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("chat: encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("chat: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("chat: %w", err)
		}
		c.logRequest(http.MethodPost, "/chat", resp.StatusCode)

		if resp.StatusCode == http.StatusServiceUnavailable {
			lastErr = serviceError("chat", resp)
			resp.Body.Close()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			err := serviceError("chat", resp)
			resp.Body.Close()
			return nil, err
		}

		var result ChatResult
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("chat: decode response: %w", err)
		}
		return &result, nil
	}
	return nil, fmt.Errorf("chat: retries exhausted: %w", lastErr)
}

// =============================================================================
// CONVERSATION MANAGEMENT
// =============================================================================

// DeleteConversation removes the conversation with the given serial
// number from the service.
func (c *Client) DeleteConversation(ctx context.Context, serial int) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	u := fmt.Sprintf("%s/deleteChat?serial_number=%d", c.baseURL, serial)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("delete: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	defer resp.Body.Close()
	c.logRequest(http.MethodDelete, "/deleteChat", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return serviceError("delete", resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// EditTurn replaces the text of one turn in a stored conversation. The
// index counts turns from the start of the transcript.
func (c *Client) EditTurn(ctx context.Context, serial, index int, newText string) error {
	body := struct {
		SerialNumber int    `json:"serial_number"`
		MessageIndex int    `json:"message_index"`
		NewMessage   string `json:"new_message"`
	}{serial, index, newText}
	return c.postJSON(ctx, "edit", "/edit", body, nil)
}

// =============================================================================
// DOCUMENT TOOLS
// =============================================================================

// toolQuery calls one of the per-conversation document tools that take
// the serial number as a query parameter and return {output}.
func (c *Client) toolQuery(ctx context.Context, op, path string, serial int) (string, error) {
	var out struct {
		Output string `json:"output"`
	}
	q := url.Values{"serial_number": {strconv.Itoa(serial)}}
	if err := c.postJSON(ctx, op, path+"?"+q.Encode(), nil, &out); err != nil {
		return "", err
	}
	return out.Output, nil
}

// Summarize asks the service for a summary of the conversation's
// attached documents.
func (c *Client) Summarize(ctx context.Context, serial int) (string, error) {
	return c.toolQuery(ctx, "summarize", "/summarize", serial)
}

// Explain asks the service for a plain-language explanation of the
// conversation's attached documents.
func (c *Client) Explain(ctx context.Context, serial int) (string, error) {
	return c.toolQuery(ctx, "explain", "/explain", serial)
}

// KeyTopics asks the service for the key topics of the conversation's
// attached documents.
func (c *Client) KeyTopics(ctx context.Context, serial int) (string, error) {
	return c.toolQuery(ctx, "key_topics", "/key_topics", serial)
}

// HighlightSources asks the service to mark query hits inside the
// conversation's attached documents.
func (c *Client) HighlightSources(ctx context.Context, serial int, query string) (*HighlightResult, error) {
	body := struct {
		SerialNumber int    `json:"serial_number"`
		Query        string `json:"query"`
	}{serial, query}
	var out HighlightResult
	if err := c.postJSON(ctx, "highlight", "/highlight_pdf", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
