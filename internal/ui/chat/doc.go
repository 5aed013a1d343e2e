// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view of the full-screen interface.
//
// # Data Flow
//
// The view owns no chat data. Keys and slash commands become tea.Cmds that
// call the orchestrator; the orchestrator changes session state; each state
// event is forwarded into the program as StateChangedMsg and the view
// re-renders from a fresh snapshot.
//
//	orch.Send (cmd goroutine) -> state event -> Program.Send(StateChangedMsg)
//	                                         -> Update -> refresh -> View
//
// # Layout
//
//	header     brand and current chat title
//	body       chat list (hidden on narrow terminals) and transcript
//	input      textarea, Enter sends, Alt+Enter adds a line
//	status     status, model, usage, key hints or a notice
//
// # Usage
//
//	m := chat.New(ctx, orch, chat.Options{UI: cfg.UI})
//	p := tea.NewProgram(m, tea.WithAltScreen())
//	unsubscribe := orch.State().Subscribe(func(ev session.Event) {
//	    p.Send(chat.StateChangedMsg{Event: ev})
//	})
//	defer unsubscribe()
//	_, err := p.Run()
package chat
