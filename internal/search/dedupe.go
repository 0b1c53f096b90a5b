// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search turns raw chat search results into a display-ready
// projection: conversations whose title and transcript are identical
// collapse into one entry that lists its duplicates.
package search

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/parley-tui/internal/model"
)

// =============================================================================
// PROJECTION TYPES
// =============================================================================

// DuplicateRef identifies a collapsed duplicate of a result entry.
type DuplicateRef struct {
	ID        int    `json:"serial_number"`
	Timestamp string `json:"timestamp"`
}

// Entry is one deduplicated search result. Conversation is the first
// occurrence in result order; Duplicates lists the later identical
// conversations that were folded into it.
type Entry struct {
	Conversation *model.Conversation
	Duplicates   []DuplicateRef
}

// =============================================================================
// DEDUPE
// =============================================================================

// Dedupe collapses conversations with identical titles and transcripts.
// Order is deterministic: entries keep the first-seen order of the
// input, and duplicates are recorded in the order they appeared.
//
// Identity is the pair (title, serialized transcript), with text run
// through Unicode NFC normalization so visually identical strings with
// different codepoint sequences compare equal.
func Dedupe(convs []*model.Conversation) []Entry {
	var entries []Entry
	index := map[string]int{}

	for _, conv := range convs {
		key := identityKey(conv)
		if i, seen := index[key]; seen {
			entries[i].Duplicates = append(entries[i].Duplicates, DuplicateRef{
				ID:        conv.ID,
				Timestamp: conv.Timestamp,
			})
			continue
		}
		index[key] = len(entries)
		entries = append(entries, Entry{Conversation: conv})
	}
	return entries
}

// identityKey serializes the parts of a conversation that define
// duplicate identity. Unit separators keep field boundaries
// unambiguous regardless of message content.
func identityKey(conv *model.Conversation) string {
	var b strings.Builder
	b.WriteString(norm.NFC.String(conv.Title))
	for _, t := range conv.Turns {
		b.WriteByte(0x1f)
		b.WriteString(string(t.Role))
		b.WriteByte(0x1e)
		b.WriteString(norm.NFC.String(t.Text))
	}
	return b.String()
}
