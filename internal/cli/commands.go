// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - Slash command handlers for the parley REPL.

package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/parley-tui/internal/api"
	"github.com/jeranaias/parley-tui/internal/model"
	"github.com/jeranaias/parley-tui/internal/search"
)

// parseCommand splits a slash command into its name and arguments.
// The name is lowercased; argument whitespace is collapsed.
func parseCommand(input string) (string, []string) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(strings.TrimPrefix(fields[0], "/")), fields[1:]
}

// dispatch runs one slash command. Returns true when the REPL should
// exit.
func (r *REPL) dispatch(ctx context.Context, input string) bool {
	cmd, args := parseCommand(input)
	switch cmd {
	case "quit", "q", "exit":
		return true
	case "help", "h":
		r.cmdHelp()
	case "new", "n":
		r.cmdNew(false)
	case "temp":
		r.cmdNew(true)
	case "open", "o":
		r.cmdOpen(args)
	case "list", "ls", "l":
		r.cmdList()
	case "rename":
		r.cmdRename(ctx, args)
	case "tag":
		r.cmdTag(args)
	case "delete", "del":
		r.cmdDelete(ctx, args)
	case "search":
		r.cmdSearch(ctx, args)
	case "attach", "a":
		r.cmdAttach(args)
	case "staged":
		r.cmdStaged()
	case "unstage":
		r.cmdUnstage(args)
	case "upload", "u":
		r.cmdUpload(ctx)
	case "edit":
		r.cmdEdit(ctx, args)
	case "summarize":
		r.cmdTool(ctx, "summarize", r.client.Summarize)
	case "explain":
		r.cmdTool(ctx, "explain", r.client.Explain)
	case "topics":
		r.cmdTool(ctx, "topics", r.client.KeyTopics)
	case "highlight":
		r.cmdHighlight(ctx, args)
	default:
		fmt.Println(errorStyle.Render("unknown command: /" + cmd))
	}
	return false
}

func (r *REPL) cmdHelp() {
	fmt.Println(titleStyle.Render("Commands"))
	help := [][2]string{
		{"/new, /temp", "start a new (or temporary) conversation"},
		{"/open N", "switch to conversation N"},
		{"/list", "list conversations by recency"},
		{"/rename N TITLE", "rename conversation N"},
		{"/tag [TAG ...]", "set (or clear) the current conversation's tags"},
		{"/delete [N]", "delete a conversation"},
		{"/search QUERY", "search stored conversations"},
		{"/attach PATH", "stage a file for upload"},
		{"/staged, /unstage NAME", "inspect or trim the staging area"},
		{"/upload", "upload staged files"},
		{"/edit N IDX TEXT", "edit turn IDX of conversation N"},
		{"/summarize, /explain, /topics", "document tools"},
		{"/highlight QUERY", "highlight QUERY in source documents"},
		{"/quit", "exit"},
	}
	for _, h := range help {
		fmt.Printf("  %-28s %s\n", h[0], infoStyle.Render(h[1]))
	}
}

// =============================================================================
// CONVERSATION COMMANDS
// =============================================================================

func (r *REPL) cmdNew(temporary bool) {
	conv := r.store.Create()
	conv.Temporary = temporary
	conv.SystemInstructions = r.cfg.Chat.SystemInstructions
	if temporary {
		fmt.Println(successStyle.Render("temporary conversation started (not saved server-side)"))
	} else {
		fmt.Println(successStyle.Render("new conversation started"))
	}
}

func (r *REPL) cmdOpen(args []string) {
	if len(args) != 1 {
		fmt.Println(errorStyle.Render("usage: /open N"))
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println(errorStyle.Render("usage: /open N"))
		return
	}
	conv, err := r.store.Select(id)
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}
	r.printTranscript(conv)
}

func (r *REPL) cmdList() {
	if r.store.Len() == 0 {
		fmt.Println(infoStyle.Render("no conversations"))
		return
	}
	width := TerminalWidth()
	for _, b := range model.Buckets {
		convs := r.store.Bucket(b)
		if len(convs) == 0 {
			continue
		}
		fmt.Println(bucketStyle.Render(bucketHeading(b)))
		for _, conv := range convs {
			fmt.Println("  " + conversationLabel(conv, width))
		}
	}
}

func (r *REPL) cmdRename(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Println(errorStyle.Render("usage: /rename N TITLE"))
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println(errorStyle.Render("usage: /rename N TITLE"))
		return
	}
	title := strings.Join(args[1:], " ")
	if err := r.store.Rename(id, title); err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}
	fmt.Println(successStyle.Render("renamed"))
}

// cmdTag sets the current conversation's tags. They ride on the next
// exchange request, which is how they reach the server.
func (r *REPL) cmdTag(args []string) {
	conv := r.store.Current()
	if conv == nil {
		fmt.Println(errorStyle.Render("no current conversation"))
		return
	}
	conv.Tags = args
	if len(args) == 0 {
		fmt.Println(successStyle.Render("tags cleared"))
		return
	}
	fmt.Println(successStyle.Render("tagged: " + strings.Join(args, ", ")))
}

func (r *REPL) cmdDelete(ctx context.Context, args []string) {
	var conv *model.Conversation
	switch len(args) {
	case 0:
		conv = r.store.Current()
		if conv == nil {
			fmt.Println(errorStyle.Render("no current conversation"))
			return
		}
	case 1:
		id, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Println(errorStyle.Render("usage: /delete [N]"))
			return
		}
		var lookupErr error
		conv, lookupErr = r.store.Get(id)
		if lookupErr != nil {
			fmt.Println(errorStyle.Render(lookupErr.Error()))
			return
		}
	default:
		fmt.Println(errorStyle.Render("usage: /delete [N]"))
		return
	}

	// Confirmed conversations exist server-side too.
	if conv.Confirmed() && !conv.Temporary {
		if err := r.client.DeleteConversation(ctx, conv.ID); err != nil && !errors.Is(err, api.ErrNotFound) {
			fmt.Println(errorStyle.Render("server delete failed: " + err.Error()))
			return
		}
	}
	if err := r.store.RemoveByToken(conv.Token); err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}
	fmt.Println(successStyle.Render("deleted"))
}

func (r *REPL) printTranscript(conv *model.Conversation) {
	title := conv.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Println(titleStyle.Render(title))
	for _, t := range conv.Turns {
		switch t.Role {
		case model.RoleUser:
			fmt.Println(promptStyle.Render("you: ") + t.Text)
		case model.RoleSystem:
			fmt.Println(systemStyle.Render("system: " + t.Text))
		default:
			fmt.Println(r.renderMarkdown(t.Text))
			if cites := renderCitations(t.Citations); cites != "" {
				fmt.Println(cites)
			}
		}
	}
}

// =============================================================================
// SEARCH
// =============================================================================

func (r *REPL) cmdSearch(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println(errorStyle.Render("usage: /search QUERY"))
		return
	}
	query := strings.Join(args, " ")
	result, err := r.client.SearchChats(ctx, api.SearchRequest{
		SearchType:   "natural",
		NaturalQuery: query,
	})
	if err != nil {
		fmt.Println(errorStyle.Render("search failed: " + err.Error()))
		return
	}
	if result.Message != "" {
		fmt.Println(infoStyle.Render(result.Message))
	}

	entries := search.Dedupe(result.Chats)
	if len(entries) == 0 {
		fmt.Println(infoStyle.Render("no matches"))
		return
	}
	width := TerminalWidth()
	for _, e := range entries {
		fmt.Println("  " + conversationLabel(e.Conversation, width))
		for _, d := range e.Duplicates {
			fmt.Println(infoStyle.Render(fmt.Sprintf("    duplicate: #%d (%s)", d.ID, d.Timestamp)))
		}
	}
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

func (r *REPL) cmdAttach(args []string) {
	if len(args) != 1 {
		fmt.Println(errorStyle.Render("usage: /attach PATH"))
		return
	}
	s, err := r.attachments.Stage(args[0])
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("staged %s (%s, %d bytes)", s.Name, s.Kind, s.Size)))
}

func (r *REPL) cmdStaged() {
	staged := r.attachments.List()
	if len(staged) == 0 {
		fmt.Println(infoStyle.Render("staging area empty"))
		return
	}
	for _, s := range staged {
		fmt.Printf("  %-30s %s  %d bytes\n", s.Name, s.Kind, s.Size)
	}
}

func (r *REPL) cmdUnstage(args []string) {
	if len(args) != 1 {
		fmt.Println(errorStyle.Render("usage: /unstage NAME"))
		return
	}
	if err := r.attachments.Remove(args[0]); err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}
	fmt.Println(successStyle.Render("unstaged"))
}

func (r *REPL) cmdUpload(ctx context.Context) {
	conv := r.store.Current()
	if conv == nil {
		fmt.Println(errorStyle.Render("no current conversation; /new first"))
		return
	}
	if err := r.attachments.Upload(ctx, conv.ID); err != nil {
		// The failure lands in the transcript so it is visible when
		// the conversation is reopened later.
		turn := model.NewTurn(model.RoleSystem, "upload failed: "+err.Error())
		r.store.CommitSystem(conv.Token, turn)
		fmt.Println(errorStyle.Render("upload failed: " + err.Error()))
		return
	}
	fmt.Println(successStyle.Render("uploaded; extracted text will ground the next message"))
}

// =============================================================================
// EDIT AND DOCUMENT TOOLS
// =============================================================================

func (r *REPL) cmdEdit(ctx context.Context, args []string) {
	if len(args) < 3 {
		fmt.Println(errorStyle.Render("usage: /edit N IDX TEXT"))
		return
	}
	id, err1 := strconv.Atoi(args[0])
	idx, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		fmt.Println(errorStyle.Render("usage: /edit N IDX TEXT"))
		return
	}
	text := strings.Join(args[2:], " ")

	if err := r.client.EditTurn(ctx, id, idx, text); err != nil {
		fmt.Println(errorStyle.Render("edit failed: " + err.Error()))
		return
	}
	// Mirror the edit locally when the conversation is loaded.
	if conv, err := r.store.Get(id); err == nil && idx >= 0 && idx < len(conv.Turns) {
		conv.Turns[idx].Text = text
	}
	fmt.Println(successStyle.Render("edited"))
}

func (r *REPL) cmdTool(ctx context.Context, name string, call func(context.Context, int) (string, error)) {
	conv := r.store.Current()
	if conv == nil || !conv.Confirmed() {
		fmt.Println(errorStyle.Render("no confirmed conversation; send a message first"))
		return
	}
	out, err := call(ctx, conv.ID)
	if err != nil {
		fmt.Println(errorStyle.Render(name + " failed: " + err.Error()))
		return
	}
	fmt.Println(r.renderMarkdown(out))
}

func (r *REPL) cmdHighlight(ctx context.Context, args []string) {
	conv := r.store.Current()
	if conv == nil || !conv.Confirmed() {
		fmt.Println(errorStyle.Render("no confirmed conversation; send a message first"))
		return
	}
	if len(args) == 0 {
		fmt.Println(errorStyle.Render("usage: /highlight QUERY"))
		return
	}
	result, err := r.client.HighlightSources(ctx, conv.ID, strings.Join(args, " "))
	if err != nil {
		fmt.Println(errorStyle.Render("highlight failed: " + err.Error()))
		return
	}
	if len(result.HighlightedFiles) == 0 {
		fmt.Println(infoStyle.Render("no matches"))
		return
	}
	for _, f := range result.HighlightedFiles {
		fmt.Printf("  %s -> %s\n", f.OriginalFile, successStyle.Render(f.HighlightedFile))
		for _, m := range f.Matches {
			fmt.Println(infoStyle.Render(fmt.Sprintf("    p.%d l.%d: %s", m.Page, m.Line, m.Text)))
		}
	}
}
