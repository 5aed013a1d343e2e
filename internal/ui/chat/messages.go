// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/aljaroudi/t3lepathy/internal/session"
)

// =============================================================================
// STATE MESSAGES
// =============================================================================

// StateChangedMsg carries a session state event into the program. The view
// re-reads a snapshot on every one.
type StateChangedMsg struct {
	Event session.Event
}

// =============================================================================
// OPERATION RESULTS
// =============================================================================

// sendDoneMsg reports the end of a send.
type sendDoneMsg struct {
	ChatID string
	Err    error
}

// opDoneMsg reports a chat list or settings operation.
type opDoneMsg struct {
	Notice string
	Err    error
}

// noticeExpiredMsg clears notice seq if it is still shown.
type noticeExpiredMsg struct {
	seq int
}
