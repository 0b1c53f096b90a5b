// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Markdown and transcript rendering.

package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/parley-tui/internal/model"
	"github.com/jeranaias/parley-tui/internal/util"
)

// newRenderer builds a glamour renderer for the configured theme,
// wrapped to the current terminal width.
func newRenderer(theme string) (*glamour.TermRenderer, error) {
	width := TerminalWidth()
	switch theme {
	case "light":
		return glamour.NewTermRenderer(glamour.WithStandardStyle("light"), glamour.WithWordWrap(width))
	case "notty":
		return glamour.NewTermRenderer(glamour.WithStandardStyle("notty"), glamour.WithWordWrap(width))
	default:
		return glamour.NewTermRenderer(glamour.WithStandardStyle("dark"), glamour.WithWordWrap(width))
	}
}

// renderMarkdown renders text as markdown, falling back to the raw
// text when rendering fails.
func (r *REPL) renderMarkdown(text string) string {
	if r.renderer == nil {
		return text
	}
	out, err := r.renderer.Render(text)
	if err != nil {
		return text
	}
	return out
}

// renderCitations formats the source list shown under a reply.
func renderCitations(citations []model.Citation) string {
	if len(citations) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Sources:\n")
	for _, c := range citations {
		if c.Page > 0 {
			fmt.Fprintf(&b, "  %s, p.%d\n", c.Source, c.Page)
		} else {
			fmt.Fprintf(&b, "  %s\n", c.Source)
		}
	}
	return citationStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// conversationLabel is the one-line listing form of a conversation.
func conversationLabel(conv *model.Conversation, width int) string {
	title := conv.Title
	if title == "" {
		title = "(untitled)"
	}
	id := "draft"
	if conv.Confirmed() {
		id = fmt.Sprintf("#%d", conv.ID)
	}
	label := fmt.Sprintf("%-6s %s", id, util.TruncateWidth(title, width-20))
	if len(conv.Tags) > 0 {
		label += infoStyle.Render("  [" + strings.Join(conv.Tags, ", ") + "]")
	}
	if conv.Temporary {
		label += infoStyle.Render("  (temporary)")
	}
	return label
}

// bucketHeading is the display name of a recency bucket.
func bucketHeading(b model.Bucket) string {
	switch b {
	case model.BucketToday:
		return "Today"
	case model.BucketYesterday:
		return "Yesterday"
	default:
		return "Last 7 days"
	}
}
