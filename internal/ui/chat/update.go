// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	chatsvc "github.com/aljaroudi/t3lepathy/internal/chat"
	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/ui/components"
)

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case StateChangedMsg:
		m.refresh()
		return m, nil

	case sendDoneMsg:
		delete(m.sending, msg.ChatID)
		var cmd tea.Cmd
		switch {
		case msg.Err == nil:
		case chatsvc.IsCanceled(msg.Err):
			cmd = m.setNotice("reply cancelled")
		default:
			m.status.Status = components.StatusError
			cmd = m.setNotice(msg.Err.Error())
		}
		m.refresh()
		return m, cmd

	case opDoneMsg:
		m.pendingDelete = ""
		if msg.Err != nil {
			m.status.Status = components.StatusError
			return m, m.setNotice(msg.Err.Error())
		}
		m.refresh()
		if msg.Notice != "" {
			return m, m.setNotice(msg.Notice)
		}
		return m, nil

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
			m.updateStatus()
		}
		return m, nil

	case spinner.TickMsg:
		if len(m.sending) == 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.updateStatus()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// KEYS
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	// Global keys
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Cancel):
		if m.showHelp {
			m.showHelp = false
			m.renderTranscript(true)
			return nil
		}
		if m.busy() {
			m.orch.Cancel(m.snap.CurrentChatID)
		}
		m.pendingDelete = ""
		return nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.renderTranscript(true)
		return nil

	case key.Matches(msg, m.keys.NewChat):
		return m.newChatCmd("")

	case key.Matches(msg, m.keys.SwitchPane):
		m.toggleFocus()
		return nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return nil
	}

	if m.focus == focusList {
		return m.handleListKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m *Model) toggleFocus() {
	if m.focus == focusInput && m.theme.SidebarWidth() > 0 {
		m.focus = focusList
		m.input.Blur()
		return
	}
	m.focus = focusInput
	m.pendingDelete = ""
	m.input.Focus()
}

func (m *Model) handleListKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.list.MoveUp()
		m.pendingDelete = ""
	case key.Matches(msg, m.keys.Down):
		m.list.MoveDown()
		m.pendingDelete = ""
	case key.Matches(msg, m.keys.Select):
		c, ok := m.list.Selected()
		if !ok {
			return nil
		}
		m.focus = focusInput
		m.input.Focus()
		if c.ID == m.snap.CurrentChatID {
			return nil
		}
		return m.selectChatCmd(c.ID)
	case key.Matches(msg, m.keys.Delete):
		c, ok := m.list.Selected()
		if !ok {
			return nil
		}
		if m.pendingDelete != c.ID {
			m.pendingDelete = c.ID
			return m.setNotice("press x again to delete " + c.GetTitle())
		}
		return m.deleteChatCmd(c)
	}
	return nil
}

func (m *Model) handleInputKey(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, m.keys.Submit) {
		return m.submit()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// submit sends the input, or runs it when it is a slash command.
func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "/") {
		m.input.Reset()
		return m.slash(text)
	}
	if m.busy() {
		return m.setNotice("wait for the reply or press esc")
	}

	m.input.Reset()
	m.showHelp = false
	m.status.Status = components.StatusReady
	req := chatsvc.SendRequest{
		ChatID:    m.snap.CurrentChatID,
		Content:   model.Content{model.Text{Text: text}},
		Model:     m.modelOverride,
		Grounding: m.grounding,
	}
	m.sending[req.ChatID] = true
	m.updateStatus()
	return tea.Batch(sendCmd(m.ctx, m.orch, req), m.spinner.Tick)
}

// setNotice shows text in the status bar until it expires.
func (m *Model) setNotice(text string) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	m.updateStatus()
	seq := m.noticeSeq
	return tea.Tick(m.noticeTTL, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}

// quit cancels in-flight sends and exits.
func (m *Model) quit() tea.Cmd {
	for id := range m.sending {
		m.orch.Cancel(id)
	}
	return tea.Quit
}
