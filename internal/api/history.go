// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jeranaias/parley-tui/internal/model"
)

// =============================================================================
// HISTORY
// =============================================================================

// FetchHistory retrieves the stored conversation list. The service
// wraps the history document in an envelope ({"file": "<json>"}), so
// the payload is decoded twice. Rows that cannot be parsed or lack a
// serial number are skipped rather than failing the whole fetch.
func (c *Client) FetchHistory(ctx context.Context) ([]*model.Conversation, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chathistory.json", nil)
	if err != nil {
		return nil, fmt.Errorf("history: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer resp.Body.Close()
	c.logRequest(http.MethodGet, "/chathistory.json", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, serviceError("history", resp)
	}

	var envelope historyEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("history: decode envelope: %w", err)
	}

	// The inner document has shipped both as {"chats": [...]} and as a
	// bare array; accept either.
	var rows []json.RawMessage
	var wrapped struct {
		Chats []json.RawMessage `json:"chats"`
	}
	if err := json.Unmarshal([]byte(envelope.File), &wrapped); err == nil && wrapped.Chats != nil {
		rows = wrapped.Chats
	} else if err := json.Unmarshal([]byte(envelope.File), &rows); err != nil {
		return nil, fmt.Errorf("history: decode document: %w", err)
	}

	conversations := make([]*model.Conversation, 0, len(rows))
	for _, row := range rows {
		conv, ok := decodeConversation(row)
		if !ok {
			continue
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

// decodeConversation converts one history row into a Conversation,
// normalizing the turn text key. Returns false for rows that are
// unusable (bad JSON, missing serial number, undecodable turn list).
func decodeConversation(row json.RawMessage) (*model.Conversation, bool) {
	var wc wireConversation
	if err := json.Unmarshal(row, &wc); err != nil {
		return nil, false
	}
	if wc.SerialNumber == 0 {
		return nil, false
	}

	var turns []wireTurn
	if len(wc.Messages) > 0 {
		if err := json.Unmarshal(wc.Messages, &turns); err != nil {
			return nil, false
		}
	}

	conv := &model.Conversation{
		ID:                 wc.SerialNumber,
		Title:              wc.Title,
		Timestamp:          wc.Timestamp,
		SystemInstructions: wc.SystemInstructions,
		Tags:               wc.Tags,
	}
	for _, wt := range turns {
		role := model.Role(wt.Role)
		if !role.Valid() {
			continue
		}
		conv.AppendTurn(model.Turn{
			Role:      role,
			Text:      wt.text(),
			Timestamp: wt.Timestamp,
			Citations: wt.References,
		})
	}
	return conv, true
}

// =============================================================================
// SEARCH
// =============================================================================

// SearchChats runs a structured or natural-language search over stored
// conversations.
func (c *Client) SearchChats(ctx context.Context, searchReq SearchRequest) (*SearchResult, error) {
	var out struct {
		Chats   []json.RawMessage `json:"chats"`
		Context string            `json:"context"`
		Message string            `json:"message"`
	}
	if err := c.postJSON(ctx, "search", "/search/chats", searchReq, &out); err != nil {
		return nil, err
	}

	result := &SearchResult{Context: out.Context, Message: out.Message}
	for _, row := range out.Chats {
		if conv, ok := decodeConversation(row); ok {
			result.Chats = append(result.Chats, conv)
		}
	}
	return result, nil
}
