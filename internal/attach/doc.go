// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach manages the attachment staging area: files the user
// has queued for upload to the document-chat service.
//
// Staged files hold an open handle from the moment they are staged
// until they are either uploaded or removed; removing or clearing a
// staged entry always releases its handle. Uploads go out in uniform
// batches per kind (documents and images use separate extraction
// pipelines server-side) and the returned text extractions are held
// until the next chat exchange claims them.
//
// A Watcher can be pointed at a staging directory to pick up new files
// automatically as they appear.
package attach
