// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small string helpers shared across the client.
//
// Truncation is rune- and width-aware so titles and previews containing
// multi-byte characters are never cut mid-character.
package util
