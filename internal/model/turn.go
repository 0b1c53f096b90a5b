// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"
)

// =============================================================================
// ROLES
// =============================================================================

// Role identifies the author of a Turn.
type Role string

const (
	// RoleUser is a message typed by the user.
	RoleUser Role = "USER"
	// RoleBot is a reply produced by the service.
	RoleBot Role = "BOT"
	// RoleSystem is a locally generated notice (for example, an upload
	// failure) that is shown in the transcript but never sent upstream.
	RoleSystem Role = "SYSTEM"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleBot, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// CITATIONS
// =============================================================================

// Citation points at the source material a bot turn drew from.
type Citation struct {
	Source string `json:"filename"`
	Page   int    `json:"page"`
	Line   int    `json:"line,omitempty"`
	Text   string `json:"text,omitempty"`
}

// =============================================================================
// TURNS
// =============================================================================

// Turn is a single entry in a conversation transcript.
type Turn struct {
	Role      Role       `json:"role"`
	Text      string     `json:"message"`
	Timestamp string     `json:"timestamp,omitempty"`
	Citations []Citation `json:"references,omitempty"`
}

// NewTurn builds a turn stamped with the current time.
func NewTurn(role Role, text string) Turn {
	return Turn{
		Role:      role,
		Text:      text,
		Timestamp: FormatTimestamp(time.Now()),
	}
}

// IsUser reports whether the turn was authored by the user.
func (t Turn) IsUser() bool { return t.Role == RoleUser }

// IsBot reports whether the turn is a service reply.
func (t Turn) IsBot() bool { return t.Role == RoleBot }

// Equal reports whether two turns carry the same role and text.
// Timestamps and citations are ignored; this is the identity used when
// deciding whether a commit would duplicate an existing reply.
func (t Turn) Equal(other Turn) bool {
	return t.Role == other.Role && t.Text == other.Text
}

// Empty reports whether the turn carries no visible text.
func (t Turn) Empty() bool {
	return strings.TrimSpace(t.Text) == ""
}
