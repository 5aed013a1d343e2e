// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides the pieces the full-screen interface is
// assembled from.
//
//   - ChatList: Sidebar of chats grouped by date bucket, with a cursor
//   - MessageView: Transcript rendering, glamour for assistant markdown
//   - StatusBar: Status, model, usage and key hints
//
// Components hold no reference to session state; the chat view copies what
// they need out of each snapshot.
package components
