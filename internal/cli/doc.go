// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive terminal frontend for parley.
//
// The REPL reads input with line editing and persistent history,
// streams replies into the terminal as they arrive, and re-renders the
// final reply as markdown. Slash commands manage conversations,
// attachments, and the document tools; anything else is sent to the
// current conversation as a chat message.
package cli
