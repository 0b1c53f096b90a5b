// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TIMESTAMPS
// =============================================================================

// TimestampLayout is the wire format the service uses for conversation
// timestamps. An ISO-8601 "T" separator is also accepted on input.
const TimestampLayout = "2006-01-02 15:04:05"

// FormatTimestamp renders t in the service's timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseTimestamp parses a service timestamp. Both the space-separated
// layout and the ISO-8601 "T" variant are accepted.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(TimestampLayout, s, time.Local); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, time.Local)
}

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation is a chat thread. Locally created conversations carry
// ID 0 until the service confirms the first exchange and assigns the
// permanent serial number.
type Conversation struct {
	// ID is the service-assigned serial number. Zero means the
	// conversation has not yet been confirmed by the service.
	ID int `json:"serial_number"`

	// Token is a locally generated correlation token. It never leaves
	// the process; the store uses it to rewrite the pending conversation
	// in place when the service assigns an ID, so two unconfirmed
	// conversations with the same title can never be confused.
	Token string `json:"-"`

	Title     string `json:"chat_title"`
	Timestamp string `json:"timestamp"`

	// SystemInstructions is the persona prompt sent with every exchange
	// in this conversation.
	SystemInstructions string `json:"system_instructions,omitempty"`

	// Temporary conversations are answered by the service but never
	// persisted server-side.
	Temporary bool `json:"is_temporary,omitempty"`

	Tags  []string `json:"tags,omitempty"`
	Turns []Turn   `json:"messages"`
}

// NewLocal creates an unconfirmed conversation with a fresh correlation
// token and the current timestamp.
func NewLocal() *Conversation {
	return &Conversation{
		Token:     uuid.NewString(),
		Timestamp: FormatTimestamp(time.Now()),
	}
}

// Confirmed reports whether the service has assigned an ID.
func (c *Conversation) Confirmed() bool { return c.ID != 0 }

// AppendTurn appends a turn to the transcript.
func (c *Conversation) AppendTurn(t Turn) {
	c.Turns = append(c.Turns, t)
}

// LastTurn returns the most recent turn, or a zero Turn and false when
// the transcript is empty.
func (c *Conversation) LastTurn() (Turn, bool) {
	if len(c.Turns) == 0 {
		return Turn{}, false
	}
	return c.Turns[len(c.Turns)-1], true
}

// Touch refreshes the conversation timestamp to now.
func (c *Conversation) Touch() {
	c.Timestamp = FormatTimestamp(time.Now())
}

// Clone returns a deep copy. Callers that hand conversations across
// goroutine boundaries should clone rather than share.
func (c *Conversation) Clone() *Conversation {
	out := *c
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	if c.Turns != nil {
		out.Turns = make([]Turn, len(c.Turns))
		copy(out.Turns, c.Turns)
		for i, t := range c.Turns {
			if t.Citations != nil {
				out.Turns[i].Citations = append([]Citation(nil), t.Citations...)
			}
		}
	}
	return &out
}

// =============================================================================
// RECENCY BUCKETS
// =============================================================================

// Bucket classifies a conversation by the calendar age of its timestamp.
type Bucket string

const (
	BucketToday     Bucket = "today"
	BucketYesterday Bucket = "yesterday"
	BucketLast7Days Bucket = "last7Days"
)

// Buckets lists the buckets in display order, newest first.
var Buckets = []Bucket{BucketToday, BucketYesterday, BucketLast7Days}

// BucketFor classifies ts relative to now using calendar dates, not
// 24-hour windows: a conversation from 23:59 belongs to "yesterday" one
// minute later. Unparseable or old timestamps land in the last-7-days
// bucket, which doubles as the catch-all.
func BucketFor(ts string, now time.Time) Bucket {
	t, err := ParseTimestamp(ts)
	if err != nil {
		return BucketLast7Days
	}
	year, month, day := now.Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	switch {
	case !t.Before(today):
		return BucketToday
	case !t.Before(today.AddDate(0, 0, -1)):
		return BucketYesterday
	default:
		return BucketLast7Days
	}
}
