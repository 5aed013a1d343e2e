// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the in-memory state of the chat client.
//
// State keeps the chat list, the messages of the active chat and the id of
// that chat. Every operation is synchronous, never touches disk, and tells
// subscribers what changed once the lock is released. Reads hand out deep
// copies so callers can never mutate state behind its back.
//
// # Key Types
//
//   - State: Mutex-guarded chat list and active message list
//   - Event: Change notification delivered to subscribers
//   - StateError: Comparable error values such as ErrIndexOutOfRange
//
// # Usage
//
// Track a new chat and stream text into a reply:
//
//	st := session.New()
//	unsubscribe := st.Subscribe(func(ev session.Event) { redraw(ev) })
//	defer unsubscribe()
//
//	st.NewChat(chat)
//	idx := st.NewMessage(placeholder)
//	part, _, err := st.AddContentPart(idx, model.Text{})
//	msg, err := st.AppendText(idx, part, "Hello")
package session
