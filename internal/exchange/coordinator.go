// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jeranaias/parley-tui/internal/api"
	"github.com/jeranaias/parley-tui/internal/model"
	"github.com/jeranaias/parley-tui/internal/store"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrExchangeActive indicates another exchange is already in
	// flight. The caller should wait for it to finish or cancel it.
	ErrExchangeActive = errors.New("an exchange is already active")

	// ErrCanceled indicates the exchange was cancelled before
	// completion. Nothing was committed.
	ErrCanceled = errors.New("exchange cancelled")

	// ErrEmptyInput indicates the user input was blank.
	ErrEmptyInput = errors.New("empty input")
)

// =============================================================================
// COORDINATOR
// =============================================================================

// Options configures a single exchange.
type Options struct {
	// OnChunk receives partial reply text as it streams in. May be nil.
	OnChunk api.ChunkHandler

	// Stream requests a streamed reply. When false the reply arrives
	// whole and OnChunk is called once.
	Stream bool

	// Extractions is document text to ground the reply with, taken
	// from the attachment manager.
	Extractions []api.Extraction

	// SelectedSources restricts retrieval to the named documents.
	SelectedSources []string

	// SelectAll asks the service to consider every stored document.
	SelectAll bool

	// Tags to attach to the conversation server-side.
	Tags []string
}

// Result is the outcome of a completed exchange.
type Result struct {
	// Text is the canonical reply text: the confirmatory response when
	// the service returned one, otherwise the accumulated stream.
	Text       string
	Serial     int
	Title      string
	Citations  []model.Citation
	Highlights []string

	// HighlightedFiles carries the overlay documents fetched for the
	// reply's citations. Empty when there were no citations or the
	// follow-on highlight call failed.
	HighlightedFiles []api.HighlightedFile
}

// Coordinator runs exchanges against the service and commits them to
// the store.
type Coordinator struct {
	client   *api.Client
	store    *store.Store
	userName string

	mu     sync.Mutex
	cancel context.CancelFunc // non-nil while an exchange is active
}

// New creates a coordinator.
func New(client *api.Client, st *store.Store, userName string) *Coordinator {
	return &Coordinator{client: client, store: st, userName: userName}
}

// Active reports whether an exchange is currently in flight.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Cancel stops the active exchange. It is cooperative and inert: the
// stream winds down on its own context, and calling Cancel with no
// exchange in flight does nothing.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// acquire claims the pending-exchange slot.
func (c *Coordinator) acquire(cancel context.CancelFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return ErrExchangeActive
	}
	c.cancel = cancel
	return nil
}

// release frees the pending-exchange slot.
func (c *Coordinator) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit runs one full exchange on conv: stream the reply, confirm it,
// and commit the user and bot turns. The conversation's service ID is
// adopted from the confirmatory response on first commit and verified
// immutable afterwards.
//
// On cancellation nothing is committed and ErrCanceled is returned. On
// any other failure the error is recorded in the transcript as a bot
// turn before returning, so the user sees what went wrong in place.
func (c *Coordinator) Submit(ctx context.Context, conv *model.Conversation, input string, opts Options) (*Result, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}
	if conv == nil {
		return nil, store.ErrNotFound
	}

	exCtx, cancel := context.WithCancel(ctx)
	if err := c.acquire(cancel); err != nil {
		cancel()
		return nil, err
	}
	defer c.release()

	req := api.ChatRequest{
		UserInput:          input,
		UserName:           c.userName,
		SerialNumber:       conv.ID,
		SystemInstructions: conv.SystemInstructions,
		Temporary:          conv.Temporary,
		Extractions:        opts.Extractions,
		SelectedSources:    opts.SelectedSources,
		SelectAll:          opts.SelectAll,
		Tags:               opts.Tags,
	}
	userTurn := model.NewTurn(model.RoleUser, input)

	var accumulated string
	if opts.Stream {
		text, err := c.client.StreamChat(exCtx, req, opts.OnChunk)
		if err != nil {
			if canceled(exCtx, err) {
				return nil, ErrCanceled
			}
			c.recordFailure(conv, userTurn, err)
			return nil, err
		}
		accumulated = text
	}

	// Confirmatory request. For a streamed exchange this persists the
	// reply server-side and returns the assigned serial number; for a
	// non-streamed one it is the whole exchange.
	result, err := c.client.Chat(exCtx, req)
	if err != nil {
		if canceled(exCtx, err) {
			return nil, ErrCanceled
		}
		c.recordFailure(conv, userTurn, err)
		return nil, err
	}

	text := result.Output
	if text == "" {
		text = accumulated
	}
	if !opts.Stream && opts.OnChunk != nil && text != "" {
		opts.OnChunk(text)
	}

	botTurn := model.NewTurn(model.RoleBot, text)
	botTurn.Citations = result.References

	// A cancel racing the service reply must not reach the store.
	if exCtx.Err() != nil {
		return nil, ErrCanceled
	}

	// Temporary conversations are answered but never persisted
	// server-side, so no serial arrives and none is adopted.
	if err := c.store.Commit(conv.Token, userTurn, botTurn, result.SerialNumber, result.Title); err != nil {
		return nil, err
	}
	// The service may normalize or extend tags; its view wins.
	if len(result.Tags) > 0 {
		conv.Tags = result.Tags
	}

	out := &Result{
		Text:       text,
		Serial:     result.SerialNumber,
		Title:      result.Title,
		Citations:  result.References,
		Highlights: result.Highlights,
	}

	// Cited replies get highlight overlays for their source documents.
	// The turns are already committed, so a failure here loses only the
	// overlays, never the exchange.
	if len(result.References) > 0 && result.SerialNumber != 0 {
		if hl, err := c.client.HighlightSources(exCtx, result.SerialNumber, input); err == nil {
			out.HighlightedFiles = hl.HighlightedFiles
		}
	}

	return out, nil
}

// canceled reports whether err is the exchange's own cancellation
// rather than a service failure.
func canceled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// recordFailure appends the user turn and an error bot turn so the
// failure is visible in the transcript. No service ID is involved.
func (c *Coordinator) recordFailure(conv *model.Conversation, userTurn model.Turn, cause error) {
	botTurn := model.NewTurn(model.RoleBot, fmt.Sprintf("Error: %v", cause))
	// Best effort: the conversation may have been removed mid-flight.
	_ = c.store.Commit(conv.Token, userTurn, botTurn, 0, "")
}
