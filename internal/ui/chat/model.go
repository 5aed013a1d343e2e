// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	chatsvc "github.com/aljaroudi/t3lepathy/internal/chat"
	"github.com/aljaroudi/t3lepathy/internal/config"
	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/session"
	"github.com/aljaroudi/t3lepathy/internal/telemetry"
	"github.com/aljaroudi/t3lepathy/internal/ui/components"
	"github.com/aljaroudi/t3lepathy/internal/ui/styles"
)

// defaultNoticeTTL is how long a status bar notice stays up.
const defaultNoticeTTL = 4 * time.Second

// inputHeight is the number of text rows of the input box.
const inputHeight = 3

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the chat view.
type Options struct {
	UI config.UIConfig

	// Model overrides the stored current model for this session.
	Model string

	Version string
}

// focusArea is the pane receiving keys.
type focusArea int

const (
	focusInput focusArea = iota
	focusList
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model of the full-screen interface. It never
// mutates session state directly: operations run as commands against the
// orchestrator and the resulting events arrive as StateChangedMsg.
type Model struct {
	ctx   context.Context
	orch  *chatsvc.Orchestrator
	state *session.State
	opts  Options

	// Styling
	theme *styles.Theme
	keys  KeyMap

	// Components
	list     *components.ChatList
	messages *components.MessageView
	status   *components.StatusBar
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	// Dimensions
	width  int
	height int
	ready  bool

	// View state
	focus         focusArea
	snap          session.Snapshot
	sending       map[string]bool
	modelOverride string
	grounding     bool
	showHelp      bool
	pendingDelete string

	notice    string
	noticeSeq int
	noticeTTL time.Duration
}

// New creates the chat view. The orchestrator should already be loaded.
func New(ctx context.Context, orch *chatsvc.Orchestrator, opts Options) *Model {
	theme := styles.NewTheme(opts.UI.Theme)

	input := textarea.New()
	input.Placeholder = "Message (Enter to send, /help for commands)"
	input.ShowLineNumbers = false
	input.Prompt = "> "
	input.CharLimit = 0
	input.SetHeight(inputHeight)
	input.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	status := components.NewStatusBar(theme)
	status.ShowTokens = opts.UI.ShowTokens
	status.ShowCost = opts.UI.ShowCost

	m := &Model{
		ctx:   ctx,
		orch:  orch,
		state: orch.State(),
		opts:  opts,
		theme: theme,
		keys:  DefaultKeyMap(),
		list:  components.NewChatList(theme),
		messages: components.NewMessageView(theme, components.MessageOptions{
			Markdown:   opts.UI.RenderMarkdown,
			ShowTokens: opts.UI.ShowTokens,
			ShowCost:   opts.UI.ShowCost,
		}),
		status:        status,
		viewport:      viewport.New(80, 20),
		input:         input,
		spinner:       sp,
		sending:       make(map[string]bool),
		modelOverride: opts.Model,
		grounding:     opts.UI.Grounding,
		noticeTTL:     defaultNoticeTTL,
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

// currentModel returns the session override or the stored current model.
func (m *Model) currentModel() model.Model {
	if m.modelOverride != "" {
		if mdl, ok := model.Lookup(m.modelOverride); ok {
			return mdl
		}
	}
	return m.orch.Settings().CurrentModel()
}

// busy reports whether the current chat has a send in flight.
func (m *Model) busy() bool {
	return m.sending[m.snap.CurrentChatID]
}

// currentChat returns the selected chat from the last snapshot.
func (m *Model) currentChat() model.Chat {
	for _, c := range m.snap.Chats {
		if c.ID == m.snap.CurrentChatID {
			return c
		}
	}
	return model.Chat{ID: m.snap.CurrentChatID}
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) setSize(width, height int) {
	m.width, m.height = width, height
	m.theme.SetSize(width, height)
	m.ready = true

	sidebar := m.theme.SidebarWidth()
	bodyHeight := height - 1 /* header */ - 1 /* status */ - (inputHeight + 1) /* input and border */
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	m.list.SetSize(sidebar, bodyHeight)
	m.viewport.Width = width - sidebar
	m.viewport.Height = bodyHeight
	m.messages.SetWidth(width - sidebar - 2)
	m.input.SetWidth(width)
	m.status.SetWidth(width)
	m.renderTranscript(true)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// refresh re-reads the state and rebuilds everything derived from it.
func (m *Model) refresh() {
	prev := m.snap.CurrentChatID
	m.snap = m.state.Snapshot()
	m.list.SetChats(m.snap.Chats, m.snap.CurrentChatID)
	m.messages.Forget(m.snap.Messages)

	mdl := m.currentModel()
	_, hasKey := m.orch.Settings().APIKey(mdl.Provider)
	usage := telemetry.Summarize(m.snap.CurrentChatID, m.snap.Messages)
	m.status.Model = mdl.Name
	m.status.NoKey = !hasKey
	m.status.Grounding = m.grounding
	m.status.Tokens = usage.TotalTokens()
	m.status.Cost = usage.Cost
	m.updateStatus()

	m.renderTranscript(prev != m.snap.CurrentChatID)
}

func (m *Model) updateStatus() {
	switch {
	case m.busy():
		m.status.Status = components.StatusStreaming
		m.status.Spinner = m.spinner.View()
	case m.status.Status == components.StatusStreaming:
		m.status.Status = components.StatusReady
	}
	m.status.Notice = m.notice
}

// renderTranscript sets the viewport content. It follows the bottom when
// the user was already there or when jump is set.
func (m *Model) renderTranscript(jump bool) {
	if !m.ready {
		return
	}
	if m.showHelp {
		m.viewport.SetContent(m.helpView())
		m.viewport.GotoTop()
		return
	}

	atBottom := m.viewport.AtBottom()
	var b strings.Builder
	if len(m.snap.Messages) == 0 {
		b.WriteString(m.theme.Empty.Render("Say something to start. Type /help for commands."))
	}
	last := len(m.snap.Messages) - 1
	for i, msg := range m.snap.Messages {
		streaming := i == last && msg.Role == model.RoleAssistant && m.busy()
		b.WriteString(m.messages.Render(msg, streaming))
		if i < last {
			b.WriteString("\n")
		}
	}
	m.viewport.SetContent(b.String())
	if jump || atBottom {
		m.viewport.GotoBottom()
	}
}
