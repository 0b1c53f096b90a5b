// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store maintains the in-memory conversation list, grouped into
// recency buckets (today, yesterday, last 7 days).
//
// Conversations created locally carry ID 0 until the service confirms
// the first exchange; the store then rewrites the conversation in place
// using its correlation token, so confirmation never produces a
// duplicate entry. Once assigned, an ID never changes.
//
// Every mutation re-sorts each bucket by ID descending with
// unconfirmed (ID 0) conversations last, and re-buckets conversations
// whose timestamps moved.
package store
