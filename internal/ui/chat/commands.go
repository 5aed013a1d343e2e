// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	chatsvc "github.com/aljaroudi/t3lepathy/internal/chat"
	"github.com/aljaroudi/t3lepathy/internal/model"
)

// =============================================================================
// COMMAND CREATORS
// =============================================================================

// sendCmd runs one send off the update loop. Progress arrives as state
// events while it runs.
func sendCmd(ctx context.Context, orch *chatsvc.Orchestrator, req chatsvc.SendRequest) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{ChatID: req.ChatID, Err: orch.Send(ctx, req)}
	}
}

// opCmd runs fn off the update loop and reports notice on success.
func opCmd(notice string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return opDoneMsg{Err: err}
		}
		return opDoneMsg{Notice: notice}
	}
}

func (m *Model) newChatCmd(title string) tea.Cmd {
	ctx, orch := m.ctx, m.orch
	return opCmd("new chat", func() error {
		_, err := orch.NewChat(ctx, title)
		return err
	})
}

func (m *Model) selectChatCmd(id string) tea.Cmd {
	ctx, orch := m.ctx, m.orch
	return opCmd("", func() error {
		return orch.SelectChat(ctx, id)
	})
}

func (m *Model) deleteChatCmd(c model.Chat) tea.Cmd {
	ctx, orch := m.ctx, m.orch
	return opCmd(fmt.Sprintf("deleted %q", c.GetTitle()), func() error {
		return orch.DeleteChat(ctx, c.ID)
	})
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// slashHelp lists the commands the input accepts.
var slashHelp = [][2]string{
	{"/new [title]", "start a new chat"},
	{"/rename <title>", "rename the current chat"},
	{"/delete", "delete the current chat"},
	{"/model [name]", "show or set the model"},
	{"/length short|medium|open", "set the response length"},
	{"/ground on|off", "toggle web search grounding"},
	{"/help", "toggle this screen"},
	{"/quit", "exit"},
}

// slash runs a command typed into the input.
func (m *Model) slash(line string) tea.Cmd {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	ctx, orch := m.ctx, m.orch

	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return m.quit()

	case "help", "?":
		m.showHelp = !m.showHelp
		m.renderTranscript(true)
		return nil

	case "new":
		return m.newChatCmd(arg)

	case "rename":
		if arg == "" {
			return m.setNotice("usage: /rename <title>")
		}
		id := m.snap.CurrentChatID
		return opCmd(fmt.Sprintf("renamed to %q", arg), func() error {
			return orch.RenameChat(ctx, id, arg)
		})

	case "delete":
		return m.deleteChatCmd(m.currentChat())

	case "model":
		if arg == "" {
			return m.setNotice("model: " + m.currentModel().Name)
		}
		mdl, ok := model.Lookup(arg)
		if !ok {
			return m.setNotice(fmt.Sprintf("unknown model %q", arg))
		}
		m.modelOverride = ""
		return opCmd("model set to "+mdl.Name, func() error {
			return orch.Settings().SetCurrentModel(ctx, mdl.Name)
		})

	case "length":
		length, err := model.ParseResponseLength(arg)
		if err != nil {
			return m.setNotice("usage: /length short|medium|open")
		}
		return opCmd(fmt.Sprintf("response length %s", length), func() error {
			return orch.Settings().SetResponseLength(ctx, length)
		})

	case "ground":
		switch strings.ToLower(arg) {
		case "on", "true", "1":
			m.grounding = true
		case "off", "false", "0":
			m.grounding = false
		case "":
			m.grounding = !m.grounding
		default:
			return m.setNotice("usage: /ground on|off")
		}
		m.status.Grounding = m.grounding
		if m.grounding {
			return m.setNotice("web search grounding on")
		}
		return m.setNotice("web search grounding off")

	default:
		return m.setNotice(fmt.Sprintf("unknown command /%s", name))
	}
}
