// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the core data structures for conversations with
// the document-chat service.
//
// A Conversation is a titled sequence of Turns exchanged with the service.
// Conversations created locally start with ID 0 (unconfirmed) and a
// randomly generated correlation Token; the service assigns the permanent
// ID on the first committed exchange, after which the ID never changes.
//
// # Key Types
//
//   - Conversation: a chat thread with ID, title, timestamp, tags, and turns
//   - Turn: a single message (user, bot, or system) within a conversation
//   - Citation: a source reference attached to a bot turn
//   - Bucket: recency classification (today, yesterday, last 7 days)
//
// # Usage
//
//	conv := model.NewLocal()
//	conv.AppendTurn(model.Turn{Role: model.RoleUser, Text: "What is in this report?"})
//	bucket := model.BucketFor(conv.Timestamp, time.Now())
package model
