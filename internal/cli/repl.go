// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Interactive chat loop for parley.
//
// Interactive commands:
//   /help               Show available commands
//   /new                Start a new conversation
//   /temp               Start a temporary conversation
//   /open N             Switch to conversation N
//   /list               List conversations by recency
//   /rename N TITLE     Rename conversation N
//   /tag [TAG ...]      Set (or clear) the current conversation's tags
//   /delete [N]         Delete conversation (current if N omitted)
//   /search QUERY       Search stored conversations
//   /attach PATH        Stage a file for upload
//   /staged             Show the staging area
//   /unstage NAME       Remove a staged file
//   /upload             Upload staged files to the current conversation
//   /edit N IDX TEXT    Edit turn IDX of conversation N
//   /summarize          Summarize the current conversation's documents
//   /explain            Explain the current conversation's documents
//   /topics             Key topics of the current conversation's documents
//   /highlight QUERY    Highlight QUERY in the source documents
//   /quit               Exit
//   Ctrl+C              Cancel the reply being generated

package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"

	"github.com/jeranaias/parley-tui/internal/api"
	"github.com/jeranaias/parley-tui/internal/attach"
	"github.com/jeranaias/parley-tui/internal/config"
	"github.com/jeranaias/parley-tui/internal/exchange"
	"github.com/jeranaias/parley-tui/internal/model"
	"github.com/jeranaias/parley-tui/internal/store"
	"github.com/jeranaias/parley-tui/internal/util"
)

// =============================================================================
// REPL
// =============================================================================

// REPL is the interactive session.
type REPL struct {
	cfg         *config.Config
	client      *api.Client
	store       *store.Store
	coordinator *exchange.Coordinator
	attachments *attach.Manager
	watcher     *attach.Watcher

	line        *liner.State
	historyFile string
	renderer    *glamour.TermRenderer
	logFile     *os.File
}

// New wires up a REPL from configuration.
func New(cfg *config.Config) *REPL {
	client := api.NewClient(cfg.Server.BaseURL).
		WithTimeout(cfg.Timeout()).
		WithRetry(cfg.Server.RetryAttempts, cfg.RetryDelay()).
		WithRateLimit(cfg.Server.RequestsPerSecond)

	st := store.New()

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	// Request activity goes to a log file, never the terminal.
	var logFile *os.File
	os.MkdirAll(configDir, 0755)
	if f, err := os.OpenFile(filepath.Join(configDir, "parley.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
		logFile = f
		client.WithLogger(log.New(f, "", log.LstdFlags))
	}

	renderer, err := newRenderer(cfg.UI.Theme)
	if err != nil {
		renderer = nil
	}

	return &REPL{
		cfg:         cfg,
		client:      client,
		store:       st,
		coordinator: exchange.New(client, st, cfg.Chat.UserName),
		attachments: attach.NewManager(client, cfg.Attachments.MaxStaged),
		line:        line,
		historyFile: filepath.Join(configDir, "input_history"),
		renderer:    renderer,
		logFile:     logFile,
	}
}

// Run starts the interactive loop and blocks until the user exits.
func (r *REPL) Run(ctx context.Context) error {
	defer r.close()

	r.loadHistory()
	r.startWatcher()
	r.bootstrap(ctx)

	fmt.Println(titleStyle.Render("parley"))
	fmt.Println(infoStyle.Render("Type a message to chat, /help for commands."))
	fmt.Println()

	for {
		input, err := r.line.Prompt(promptText(r.store.Current()))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			// io.EOF on Ctrl+D.
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := r.dispatch(ctx, input); quit {
				return nil
			}
			continue
		}
		r.submit(ctx, input)
	}
}

// promptText shows which conversation input goes to.
func promptText(conv *model.Conversation) string {
	if conv == nil {
		return promptStyle.Render("parley> ")
	}
	if !conv.Confirmed() {
		return promptStyle.Render("draft> ")
	}
	return promptStyle.Render(fmt.Sprintf("#%d> ", conv.ID))
}

// bootstrap loads stored conversations from the service, tolerating an
// unreachable server.
func (r *REPL) bootstrap(ctx context.Context) {
	convs, err := r.client.FetchHistory(ctx)
	if err != nil {
		fmt.Println(infoStyle.Render("history unavailable: " + err.Error()))
		return
	}
	r.store.Bootstrap(convs)
	if n := len(convs); n > 0 {
		fmt.Println(infoStyle.Render(fmt.Sprintf("loaded %d conversations", n)))
	}
}

// startWatcher begins auto-staging from the configured directory, if
// one is set.
func (r *REPL) startWatcher() {
	dir := r.cfg.Attachments.StagingDir
	if dir == "" {
		return
	}
	w, err := attach.NewWatcher(r.attachments, dir, 500*time.Millisecond)
	if err != nil {
		fmt.Println(errorStyle.Render("staging watcher: " + err.Error()))
		return
	}
	w.OnStaged = func(s *attach.Staged) {
		fmt.Println(successStyle.Render("staged " + s.Name))
	}
	if err := w.Watch(); err != nil {
		w.Close()
		fmt.Println(errorStyle.Render("staging watcher: " + err.Error()))
		return
	}
	r.watcher = w
}

// =============================================================================
// EXCHANGE
// =============================================================================

// submit sends one chat message on the current conversation, creating
// one if needed, and prints the reply as it streams.
func (r *REPL) submit(ctx context.Context, input string) {
	conv := r.store.Current()
	if conv == nil {
		conv = r.store.Create()
		conv.SystemInstructions = r.cfg.Chat.SystemInstructions
	}
	if conv.Title == "" {
		conv.Title = util.TitleFrom(input, r.cfg.Chat.TitleMaxRunes)
	}

	// Ctrl+C during generation cancels the exchange, not the program.
	sigCh := make(chan os.Signal, 1)
	defer close(sigCh)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			r.coordinator.Cancel()
		}
	}()

	opts := exchange.Options{
		Stream:      r.cfg.Chat.Stream,
		Extractions: r.attachments.TakeExtractions(),
		Tags:        conv.Tags,
		OnChunk: func(chunk string) {
			fmt.Print(chunk)
		},
	}

	result, err := r.coordinator.Submit(ctx, conv, input, opts)
	fmt.Println()
	switch {
	case errors.Is(err, exchange.ErrCanceled):
		fmt.Println(infoStyle.Render("(cancelled)"))
		return
	case errors.Is(err, exchange.ErrExchangeActive):
		fmt.Println(errorStyle.Render("a reply is still being generated"))
		return
	case err != nil:
		fmt.Println(errorStyle.Render("error: " + err.Error()))
		return
	}

	if cites := renderCitations(result.Citations); cites != "" {
		fmt.Println(cites)
	}
	for _, f := range result.HighlightedFiles {
		fmt.Println(infoStyle.Render("  highlighted: " + f.HighlightedFile))
	}
	fmt.Println()
}

// =============================================================================
// HISTORY AND SHUTDOWN
// =============================================================================

func (r *REPL) loadHistory() {
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
}

func (r *REPL) saveHistory() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0755); err != nil {
		return
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.WriteHistory(f)
}

func (r *REPL) close() {
	r.saveHistory()
	r.line.Close()
	r.attachments.Clear()
	if r.watcher != nil {
		r.watcher.Close()
	}
	if r.logFile != nil {
		r.logFile.Close()
	}
}
