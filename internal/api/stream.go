// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

// streamReadSize is the buffer size for each network read. The service
// applies no framing, so chunk boundaries are arbitrary.
const streamReadSize = 4096

// ChunkHandler is called once per published chunk of streamed reply
// text. Chunks are valid UTF-8: a multi-byte character is never split
// across two calls.
type ChunkHandler func(chunk string)

// =============================================================================
// RUNE-SAFE CHUNKING
// =============================================================================

// chunker accumulates raw stream bytes and emits only complete runes,
// holding back the trailing bytes of any character still in flight.
type chunker struct {
	pending []byte
}

// push appends raw bytes and returns the longest prefix that ends on a
// rune boundary. The remainder is held for the next push.
func (k *chunker) push(b []byte) string {
	k.pending = append(k.pending, b...)

	// A UTF-8 character is at most 4 bytes, so only the tail needs
	// inspection. Find the start of the last rune and check whether it
	// is complete.
	end := len(k.pending)
	start := end
	for start > 0 && end-start < utf8.UTFMax {
		start--
		if utf8.RuneStart(k.pending[start]) {
			break
		}
	}
	if start < end && !utf8.FullRune(k.pending[start:]) {
		end = start
	}

	if end == 0 {
		return ""
	}
	out := string(k.pending[:end])
	k.pending = append(k.pending[:0], k.pending[end:]...)
	return out
}

// flush returns whatever is still held, complete or not. Called at EOF;
// a truncated character at end of stream is passed through as-is.
func (k *chunker) flush() string {
	if len(k.pending) == 0 {
		return ""
	}
	out := string(k.pending)
	k.pending = k.pending[:0]
	return out
}

// =============================================================================
// STREAMED CHAT
// =============================================================================

// StreamChat performs a streamed chat request, invoking onChunk for
// each piece of reply text as it arrives. EOF is the only completion
// signal. The accumulated reply is returned; on mid-stream failure the
// error is a *StreamError carrying the partial text.
//
// Like Chat, a busy service is retried before the stream starts; once
// bytes are flowing there are no retries.
func (c *Client) StreamChat(ctx context.Context, chatReq ChatRequest, onChunk ChunkHandler) (string, error) {
	chatReq.Stream = true

	body, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("chat stream: encode request: %w", err)
	}

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		if err := c.wait(ctx); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("chat stream: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		r, err := c.streamClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("chat stream: %w", err)
		}
		c.logRequest(http.MethodPost, "/chat", r.StatusCode)
		if r.StatusCode == http.StatusServiceUnavailable {
			lastErr = serviceError("chat stream", r)
			r.Body.Close()
			continue
		}
		if r.StatusCode != http.StatusOK {
			err := serviceError("chat stream", r)
			r.Body.Close()
			return "", err
		}
		resp = r
		break
	}
	if resp == nil {
		return "", fmt.Errorf("chat stream: retries exhausted: %w", lastErr)
	}
	defer resp.Body.Close()

	var full strings.Builder
	var ck chunker
	buf := make([]byte, streamReadSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if chunk := ck.push(buf[:n]); chunk != "" {
				full.WriteString(chunk)
				if onChunk != nil {
					onChunk(chunk)
				}
			}
		}
		if err == io.EOF {
			if tail := ck.flush(); tail != "" {
				full.WriteString(tail)
				if onChunk != nil {
					onChunk(tail)
				}
			}
			return full.String(), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return full.String(), &StreamError{Partial: full.String(), Err: err}
		}
	}
}
