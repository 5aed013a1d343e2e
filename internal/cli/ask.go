// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - one question, one reply, then exit.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aljaroudi/t3lepathy/internal/app"
	"github.com/aljaroudi/t3lepathy/internal/chat"
	"github.com/aljaroudi/t3lepathy/internal/model"
)

// maxStdinBytes caps text piped into ask.
const maxStdinBytes = 1 << 20

// AskResult is the --json output of ask.
type AskResult struct {
	Chat    model.Chat    `json:"chat"`
	Message model.Message `json:"message"`
}

// ask sends Query, plus anything piped on stdin, to a new chat. An empty
// current chat is reused rather than left behind.
func (r *Runner) ask(ctx context.Context, a *app.App, args Args) error {
	query, err := r.askQuery(args.Query)
	if err != nil {
		return err
	}
	if query == "" {
		return ErrMissingArgument("question", `t3lepathy ask "What is a goroutine?"`)
	}

	if err := a.Chat.Load(ctx); err != nil {
		return err
	}
	chatID := a.State.CurrentChatID()
	if a.State.MessageCount() > 0 {
		c, err := a.Chat.NewChat(ctx, "")
		if err != nil {
			return err
		}
		chatID = c.ID
	}

	req := chat.SendRequest{
		ChatID:    chatID,
		Content:   model.Content{model.Text{Text: query}},
		Model:     args.Model,
		Grounding: a.Config.UI.Grounding,
	}

	if args.JSON {
		if err := a.Chat.Send(ctx, req); err != nil {
			return err
		}
		msgs := a.State.Messages()
		c, _ := a.State.Chat(chatID)
		return NewJSONResponse("ask", AskResult{Chat: c, Message: msgs[len(msgs)-1]}).Print(r.Out)
	}

	rend := newRenderer(a.Config.UI, r.TTY, args.Quiet)
	return sendAndPrint(ctx, a.Chat, req, r.Out, rend)
}

// askQuery appends piped stdin to the question.
func (r *Runner) askQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if r.Interactive || r.In == nil {
		return query, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.In, maxStdinBytes))
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	piped := strings.TrimSpace(string(data))
	switch {
	case piped == "":
		return query, nil
	case query == "":
		return piped, nil
	default:
		return query + "\n\n" + piped, nil
	}
}
