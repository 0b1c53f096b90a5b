// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Centralized styling for parley terminal output.

package cli

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// promptStyle colors the input prompt.
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")). // Cyan
			Bold(true)

	// titleStyle is used for the welcome banner and section headers.
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")). // Purple
			Bold(true)

	// bucketStyle renders recency bucket headings in listings.
	bucketStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")). // White
			Bold(true)

	// infoStyle is used for secondary information.
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Light gray

	// errorStyle is used for errors.
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// successStyle is used for confirmations.
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")) // Green

	// systemStyle renders locally generated system turns.
	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")). // Amber
			Italic(true)

	// citationStyle renders the source list under a reply.
	citationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)
)
