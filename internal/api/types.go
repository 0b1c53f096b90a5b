// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"

	"github.com/jeranaias/parley-tui/internal/model"
)

// =============================================================================
// CHAT
// =============================================================================

// Extraction is the text pulled out of an uploaded document, echoed
// back to the service with each chat request so it can ground replies.
type Extraction struct {
	RawText string `json:"raw_text"`
	Name    string `json:"pdf_name"`
}

// ChatRequest is the payload for POST /chat.
type ChatRequest struct {
	UserInput          string       `json:"user_input"`
	UserName           string       `json:"user_name"`
	SerialNumber       int          `json:"serial_number,omitempty"`
	SystemInstructions string       `json:"system_instructions,omitempty"`
	Temporary          bool         `json:"is_temporary"`
	Stream             bool         `json:"stream"`
	Extractions        []Extraction `json:"pdf_extractions,omitempty"`
	SelectedSources    []string     `json:"selected_pdfs,omitempty"`
	SelectAll          bool         `json:"select_all"`
	Tags               []string     `json:"tags,omitempty"`
}

// ChatResult is the JSON reply to a non-streamed (or confirmatory) chat
// request. SerialNumber is the service-assigned conversation ID.
type ChatResult struct {
	Output       string           `json:"output"`
	SerialNumber int              `json:"serial_number"`
	Title        string           `json:"chat_title"`
	Highlights   []string         `json:"highlights,omitempty"`
	References   []model.Citation `json:"references,omitempty"`
	Tags         []string         `json:"tags,omitempty"`
	Status       string           `json:"status,omitempty"`
}

// =============================================================================
// HISTORY
// =============================================================================

// historyEnvelope is the outer shape of GET /chathistory.json: the
// actual history is a JSON document serialized into the "file" field.
type historyEnvelope struct {
	File string `json:"file"`
}

// wireTurn tolerates both text keys the service has used over time:
// history rows carry "content" while live conversations carry
// "message".
type wireTurn struct {
	Role       string           `json:"role"`
	Message    string           `json:"message"`
	Content    string           `json:"content"`
	Timestamp  string           `json:"timestamp"`
	References []model.Citation `json:"references"`
}

func (w wireTurn) text() string {
	if w.Message != "" {
		return w.Message
	}
	return w.Content
}

// wireConversation is a history row as the service stores it.
type wireConversation struct {
	SerialNumber       int             `json:"serial_number"`
	Title              string          `json:"chat_title"`
	Timestamp          string          `json:"timestamp"`
	SystemInstructions string          `json:"system_instructions"`
	Tags               []string        `json:"tags"`
	Messages           json.RawMessage `json:"messages"`
}

// =============================================================================
// SEARCH
// =============================================================================

// SearchRequest is the payload for POST /search/chats. StructuredQuery
// holds field filters; NaturalQuery is free text the service interprets.
type SearchRequest struct {
	StructuredQuery map[string]string `json:"structured_query,omitempty"`
	SearchType      string            `json:"search_type"`
	NaturalQuery    string            `json:"natural_query,omitempty"`
}

// SearchResult is the reply to a chat search.
type SearchResult struct {
	Chats   []*model.Conversation
	Context string
	Message string
}

// =============================================================================
// UPLOADS
// =============================================================================

// UploadResult is the reply to a multipart attachment upload.
type UploadResult struct {
	Message     string       `json:"message"`
	Extractions []Extraction `json:"extractions"`
}

// =============================================================================
// HIGHLIGHTS
// =============================================================================

// HighlightMatch locates one query hit inside a source document.
type HighlightMatch struct {
	Page int    `json:"page"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// HighlightedFile pairs a source document with its highlighted copy.
type HighlightedFile struct {
	OriginalFile    string           `json:"original_file"`
	HighlightedFile string           `json:"highlighted_file"`
	Matches         []HighlightMatch `json:"matches"`
}

// HighlightResult is the reply to POST /highlight_pdf.
type HighlightResult struct {
	HighlightedFiles []HighlightedFile `json:"highlighted_files"`
}
