// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/aljaroudi/t3lepathy/internal/chat"
	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/session"
)

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter follows the assistant reply of one chat through session
// events and writes each new piece of text once.
type streamPrinter struct {
	state  *session.State
	chatID string
	out    io.Writer
	live   bool

	mu      sync.Mutex
	msgID   string
	printed int
}

func newStreamPrinter(state *session.State, chatID string, out io.Writer, live bool) *streamPrinter {
	return &streamPrinter{state: state, chatID: chatID, out: out, live: live}
}

// handle is a session.State subscriber.
func (p *streamPrinter) handle(ev session.Event) {
	if ev.ChatID != p.chatID {
		return
	}
	if ev.Kind != session.EventMessageAdded && ev.Kind != session.EventMessageUpdated {
		return
	}
	msg, err := p.state.Message(ev.MessageIndex)
	if err != nil || msg.ChatID != p.chatID || msg.Role != model.RoleAssistant {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if msg.ID != p.msgID {
		p.msgID, p.printed = msg.ID, 0
	}
	text := msg.Content.PlainText()
	if len(text) <= p.printed {
		return
	}
	if p.live {
		io.WriteString(p.out, text[p.printed:])
	}
	p.printed = len(text)
}

// reply returns the id of the assistant message seen so far and whether
// any of its text was written.
func (p *streamPrinter) reply() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.msgID, p.live && p.printed > 0
}

// =============================================================================
// SEND
// =============================================================================

// sendAndPrint runs one send and prints the reply. Replies stream as they
// arrive unless markdown rendering is on, in which case the finished reply
// is rendered once. Ctrl+C cancels the send.
func sendAndPrint(ctx context.Context, orch *chat.Orchestrator, req chat.SendRequest, out io.Writer, r *renderer) error {
	state := orch.State()
	p := newStreamPrinter(state, req.ChatID, out, !r.markdown())
	unsubscribe := state.Subscribe(p.handle)
	defer unsubscribe()

	if r.markdown() && !r.mute {
		fmt.Fprintln(out, DimStyle.Render("thinking... (Ctrl+C to cancel)"))
	}

	stop := cancelOnInterrupt(orch, req.ChatID)
	err := orch.Send(ctx, req)
	stop()

	id, streamed := p.reply()
	if streamed {
		fmt.Fprintln(out)
	}
	if msg, ok := findMessage(state.Messages(), id); ok {
		if r.markdown() && msg.Content.HasText() {
			fmt.Fprintln(out, strings.TrimRight(r.renderMarkdown(msg.Content.PlainText()), "\n"))
		}
		r.attachments(out, msg.Content)
		if err == nil {
			r.footer(out, msg)
		}
	}
	return err
}

// cancelOnInterrupt cancels the chat's in-flight send on SIGINT until stop
// is called.
func cancelOnInterrupt(orch *chat.Orchestrator, chatID string) (stop func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case <-sig:
			orch.Cancel(chatID)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}

func findMessage(msgs []model.Message, id string) (model.Message, bool) {
	if id == "" {
		return model.Message{}, false
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID == id {
			return msgs[i], true
		}
	}
	return model.Message{}, false
}
