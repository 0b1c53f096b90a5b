// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package exchange coordinates a single in-flight chat exchange: it
// streams the reply, publishes partial text to a listener, performs the
// confirmatory request that assigns the conversation its service ID,
// and commits the finished exchange to the store.
//
// Only one exchange may be active at a time; Submit fails with
// ErrExchangeActive while another is running. Cancel stops the active
// exchange cooperatively and is a no-op when nothing is in flight. A
// cancelled exchange commits nothing; a failed one records the error as
// a system-visible bot turn so the transcript shows what happened.
package exchange
