// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui runs the full-screen interface.
package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	chatsvc "github.com/aljaroudi/t3lepathy/internal/chat"
	"github.com/aljaroudi/t3lepathy/internal/session"
	"github.com/aljaroudi/t3lepathy/internal/ui/chat"
)

// Run shows the interface until the user quits or ctx ends. The
// orchestrator must be loaded.
func Run(ctx context.Context, orch *chatsvc.Orchestrator, opts chat.Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := chat.New(ctx, orch, opts)
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	unsubscribe := orch.State().Subscribe(func(ev session.Event) {
		p.Send(chat.StateChangedMsg{Event: ev})
	})
	defer unsubscribe()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running interface: %w", err)
	}
	return nil
}
