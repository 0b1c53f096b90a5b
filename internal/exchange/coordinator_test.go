// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley-tui/internal/api"
	"github.com/jeranaias/parley-tui/internal/model"
	"github.com/jeranaias/parley-tui/internal/store"
)

// chatServer answers /chat with a streamed body for stream=true and a
// JSON result for stream=false.
func chatServer(t *testing.T, chunks []string, result api.ChatResult) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Stream {
			for _, c := range chunks {
				w.Write([]byte(c))
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			}
			return
		}
		json.NewEncoder(w).Encode(result)
	}))
}

func newFixture(t *testing.T, srvURL string) (*Coordinator, *store.Store) {
	t.Helper()
	st := store.New()
	client := api.NewClient(srvURL).WithRetry(1, 0)
	return New(client, st, "casey"), st
}

// =============================================================================
// FULL EXCHANGE
// =============================================================================

func TestSubmit_StreamedExchange(t *testing.T) {
	srv := chatServer(t, []string{"Hi", " there"}, api.ChatResult{
		Output:       "Hi there",
		SerialNumber: 42,
		Title:        "greeting",
	})
	defer srv.Close()

	coord, st := newFixture(t, srv.URL)
	conv := st.Create()

	var chunks []string
	result, err := coord.Submit(context.Background(), conv, "hello", Options{
		Stream:  true,
		OnChunk: func(c string) { chunks = append(chunks, c) },
	})
	require.NoError(t, err)

	assert.Equal(t, "Hi there", result.Text)
	assert.Equal(t, 42, result.Serial)

	// Streamed text reached the listener.
	var joined string
	for _, c := range chunks {
		joined += c
	}
	assert.Equal(t, "Hi there", joined)

	// The conversation adopted the serial in place, no duplicate.
	assert.Equal(t, 42, conv.ID)
	assert.Equal(t, "greeting", conv.Title)
	assert.Equal(t, 1, st.Len())
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, "hello", conv.Turns[0].Text)
	assert.Equal(t, "Hi there", conv.Turns[1].Text)
	assert.False(t, coord.Active(), "slot must be released after completion")
}

func TestSubmit_NonStreamed(t *testing.T) {
	srv := chatServer(t, nil, api.ChatResult{Output: "whole reply", SerialNumber: 7})
	defer srv.Close()

	coord, st := newFixture(t, srv.URL)
	conv := st.Create()

	var chunks []string
	result, err := coord.Submit(context.Background(), conv, "q", Options{
		OnChunk: func(c string) { chunks = append(chunks, c) },
	})
	require.NoError(t, err)
	assert.Equal(t, "whole reply", result.Text)
	assert.Equal(t, []string{"whole reply"}, chunks, "non-streamed reply is published once")
}

func TestSubmit_ConfirmOutputWins(t *testing.T) {
	// The confirmatory response is canonical even when it differs from
	// the accumulated stream.
	srv := chatServer(t, []string{"draft text"}, api.ChatResult{
		Output:       "final text",
		SerialNumber: 3,
	})
	defer srv.Close()

	coord, st := newFixture(t, srv.URL)
	conv := st.Create()

	result, err := coord.Submit(context.Background(), conv, "q", Options{Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "final text", result.Text)
	assert.Equal(t, "final text", conv.Turns[1].Text)
}

func TestSubmit_TemporaryStaysLocal(t *testing.T) {
	var sawTemporary bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sawTemporary = req.Temporary
		// Temporary conversations are answered but not persisted, so no
		// serial number comes back.
		json.NewEncoder(w).Encode(api.ChatResult{Output: "ephemeral answer"})
	}))
	defer srv.Close()

	coord, st := newFixture(t, srv.URL)
	conv := st.Create()
	conv.Temporary = true

	result, err := coord.Submit(context.Background(), conv, "q", Options{})
	require.NoError(t, err)
	assert.True(t, sawTemporary)
	assert.Equal(t, 0, result.Serial)
	assert.False(t, conv.Confirmed(), "no serial, no identity transition")
	require.Len(t, conv.Turns, 2)
	assert.Contains(t, st.Bucket(model.BucketToday), conv)
}

func TestSubmit_TagRoundTrip(t *testing.T) {
	var sentTags []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sentTags = req.Tags
		json.NewEncoder(w).Encode(api.ChatResult{
			Output:       "ok",
			SerialNumber: 11,
			Tags:         []string{"finance", "q3"},
		})
	}))
	defer srv.Close()

	coord, st := newFixture(t, srv.URL)
	conv := st.Create()
	conv.Tags = []string{"finance"}

	_, err := coord.Submit(context.Background(), conv, "q", Options{Tags: conv.Tags})
	require.NoError(t, err)
	assert.Equal(t, []string{"finance"}, sentTags)
	assert.Equal(t, []string{"finance", "q3"}, conv.Tags, "the service's tag view wins")
}

func TestSubmit_TrimsInput(t *testing.T) {
	var sentInput string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sentInput = req.UserInput
		json.NewEncoder(w).Encode(api.ChatResult{Output: "ok", SerialNumber: 2})
	}))
	defer srv.Close()

	coord, st := newFixture(t, srv.URL)
	conv := st.Create()

	_, err := coord.Submit(context.Background(), conv, "  hello  \n", Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello", sentInput, "the request carries the trimmed text")
	assert.Equal(t, "hello", conv.Turns[0].Text)
}

func TestSubmit_EmptyInput(t *testing.T) {
	coord, st := newFixture(t, "http://unused")
	conv := st.Create()
	_, err := coord.Submit(context.Background(), conv, "  \n", Options{})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestSubmit_CitedReplyFetchesHighlights(t *testing.T) {
	var highlightSerial int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat":
			json.NewEncoder(w).Encode(api.ChatResult{
				Output:       "see the report",
				SerialNumber: 9,
				References:   []model.Citation{{Source: "report.pdf", Page: 2}},
			})
		case "/highlight_pdf":
			var body struct {
				SerialNumber int `json:"serial_number"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			highlightSerial = body.SerialNumber
			json.NewEncoder(w).Encode(api.HighlightResult{
				HighlightedFiles: []api.HighlightedFile{{
					OriginalFile:    "report.pdf",
					HighlightedFile: "report_highlighted.pdf",
				}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	coord, st := newFixture(t, srv.URL)
	conv := st.Create()

	result, err := coord.Submit(context.Background(), conv, "where is revenue?", Options{})
	require.NoError(t, err)
	assert.Equal(t, 9, highlightSerial, "overlays are fetched for the assigned serial")
	require.Len(t, result.HighlightedFiles, 1)
	assert.Equal(t, "report_highlighted.pdf", result.HighlightedFiles[0].HighlightedFile)
}

func TestSubmit_HighlightFailureKeepsExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/highlight_pdf" {
			http.Error(w, `{"error":"no overlays"}`, http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(api.ChatResult{
			Output:       "cited answer",
			SerialNumber: 4,
			References:   []model.Citation{{Source: "a.pdf"}},
		})
	}))
	defer srv.Close()

	coord, st := newFixture(t, srv.URL)
	conv := st.Create()

	result, err := coord.Submit(context.Background(), conv, "q", Options{})
	require.NoError(t, err, "losing overlays must not fail the exchange")
	assert.Empty(t, result.HighlightedFiles)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, 4, conv.ID)
}

// =============================================================================
// SINGLE ACTIVE EXCHANGE
// =============================================================================

func TestSubmit_RejectsConcurrent(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		json.NewEncoder(w).Encode(api.ChatResult{Output: "done", SerialNumber: 1})
	}))
	defer srv.Close()

	coord, st := newFixture(t, srv.URL)
	conv := st.Create()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		coord.Submit(context.Background(), conv, "first", Options{})
	}()

	// Wait until the first exchange holds the slot.
	require.Eventually(t, coord.Active, time.Second, 5*time.Millisecond)

	_, err := coord.Submit(context.Background(), conv, "second", Options{})
	assert.ErrorIs(t, err, ErrExchangeActive)

	close(block)
	wg.Wait()
	assert.False(t, coord.Active())

	// The slot is free again; a new submit goes through.
	require.Len(t, conv.Turns, 2)
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancel_MidStream(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("partial"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		close(started)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	coord, st := newFixture(t, srv.URL)
	conv := st.Create()

	done := make(chan error, 1)
	go func() {
		_, err := coord.Submit(context.Background(), conv, "q", Options{Stream: true})
		done <- err
	}()

	<-started
	coord.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled exchange did not return")
	}

	assert.Empty(t, conv.Turns, "a cancelled exchange commits nothing")
	assert.False(t, coord.Active())
}

func TestCancel_AfterReplyBeforeCommit(t *testing.T) {
	// The non-streamed reply is published before the commit step, so a
	// cancel fired from the chunk handler lands exactly in the window
	// between the service answering and the store being touched.
	srv := chatServer(t, nil, api.ChatResult{Output: "late reply", SerialNumber: 8})
	defer srv.Close()

	coord, st := newFixture(t, srv.URL)
	conv := st.Create()

	_, err := coord.Submit(context.Background(), conv, "q", Options{
		OnChunk: func(string) { coord.Cancel() },
	})
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Empty(t, conv.Turns, "a cancelled exchange commits nothing")
	assert.False(t, conv.Confirmed())
	assert.False(t, coord.Active())
}

func TestCancel_Inert(t *testing.T) {
	coord, _ := newFixture(t, "http://unused")
	// No exchange in flight: must not panic or block.
	coord.Cancel()
	coord.Cancel()
	assert.False(t, coord.Active())
}

// =============================================================================
// FAILURE
// =============================================================================

func TestSubmit_FailureRecordedInTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model exploded"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	coord, st := newFixture(t, srv.URL)
	conv := st.Create()

	_, err := coord.Submit(context.Background(), conv, "q", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrServer)

	require.Len(t, conv.Turns, 2, "failure must be visible in the transcript")
	assert.Equal(t, model.RoleUser, conv.Turns[0].Role)
	assert.Equal(t, model.RoleBot, conv.Turns[1].Role)
	assert.Contains(t, conv.Turns[1].Text, "Error:")
	assert.False(t, conv.Confirmed(), "a failed exchange assigns no ID")
	assert.False(t, coord.Active())
}
