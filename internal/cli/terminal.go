// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for parley.

package cli

import (
	"os"

	"golang.org/x/term"
)

const (
	defaultWidth = 80
	maxWidth     = 120
)

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// TerminalWidth returns the usable output width, clamped so rendered
// markdown stays readable on very wide terminals.
func TerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	if w > maxWidth {
		return maxWidth
	}
	return w
}
