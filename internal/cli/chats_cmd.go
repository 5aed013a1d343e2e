// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chats_cmd.go - listing, printing, deleting and exporting stored chats.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/aljaroudi/t3lepathy/internal/app"
	"github.com/aljaroudi/t3lepathy/internal/chat"
	"github.com/aljaroudi/t3lepathy/internal/export"
	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/storage"
	"github.com/aljaroudi/t3lepathy/internal/telemetry"
	"github.com/aljaroudi/t3lepathy/internal/util"
)

// shortIDLen is how much of a chat id listings show.
const shortIDLen = 8

// ChatEntry is one chat in the --json output of chats.
type ChatEntry struct {
	model.Chat
	Bucket   string `json:"bucket"`
	Messages int    `json:"messages"`
}

// ShowResult is the --json output of show.
type ShowResult struct {
	Chat     model.Chat          `json:"chat"`
	Messages []model.Message     `json:"messages"`
	Usage    telemetry.ChatUsage `json:"usage"`
}

// =============================================================================
// CHATS
// =============================================================================

func (r *Runner) chats(ctx context.Context, a *app.App, args Args) error {
	var (
		chats []model.Chat
		err   error
	)
	if args.Search != "" {
		chats, err = a.Store.SearchChats(ctx, args.Search)
	} else {
		chats, err = a.Store.GetChats(ctx)
	}
	if err != nil {
		return err
	}

	now := time.Now()
	entries := make([]ChatEntry, 0, len(chats))
	for _, c := range chats {
		n, err := a.Store.CountMessages(ctx, c.ID)
		if err != nil {
			return err
		}
		entries = append(entries, ChatEntry{Chat: c, Bucket: util.DateBucket(c.CreatedAt, now), Messages: n})
	}

	if args.JSON {
		return NewJSONResponse("chats", entries).Print(r.Out)
	}
	if len(entries) == 0 {
		if args.Search != "" {
			fmt.Fprintf(r.Out, "No chats match %q.\n", args.Search)
		} else {
			fmt.Fprintln(r.Out, "No chats yet. Start one with: t3lepathy chat")
		}
		return nil
	}
	printChatList(r.Out, entries, "")
	return nil
}

// printChatList prints entries under date bucket headers. The chat with
// currentID is marked. Entries are numbered from 1 in list order.
func printChatList(w io.Writer, entries []ChatEntry, currentID string) {
	bucket := ""
	for i, e := range entries {
		if e.Bucket != bucket {
			if bucket != "" {
				fmt.Fprintln(w)
			}
			bucket = e.Bucket
			fmt.Fprintln(w, SectionStyle.Render(bucket))
		}
		marker := "  "
		title := util.TruncateWidth(e.GetTitle(), 48)
		if e.ID == currentID {
			marker = HighlightStyle.Render("* ")
			title = HighlightStyle.Render(title)
		}
		fmt.Fprintf(w, "%s%3d  %s  %s %s\n", marker, i+1,
			DimStyle.Render(shortID(e.ID)),
			title,
			DimStyle.Render(fmt.Sprintf("(%d)", e.Messages)))
	}
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

// resolveChatID maps an id or unique id prefix to a chat id.
func resolveChatID(ctx context.Context, store *storage.Store, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", ErrMissingArgument("id", "t3lepathy show 3f1c")
	}
	exists, err := store.ChatExists(ctx, arg)
	if err != nil {
		return "", err
	}
	if exists {
		return arg, nil
	}

	chats, err := store.GetChats(ctx)
	if err != nil {
		return "", err
	}
	matches := lo.Filter(chats, func(c model.Chat, _ int) bool {
		return strings.HasPrefix(c.ID, arg)
	})
	switch len(matches) {
	case 0:
		return "", &chat.NotFoundError{Kind: "chat", ID: arg}
	case 1:
		return matches[0].ID, nil
	default:
		return "", &ValidationError{Field: "id", Value: arg, Reason: fmt.Sprintf("prefix matches %d chats", len(matches))}
	}
}

// =============================================================================
// SHOW
// =============================================================================

func (r *Runner) show(ctx context.Context, a *app.App, args Args) error {
	id, err := resolveChatID(ctx, a.Store, args.ChatID)
	if err != nil {
		return err
	}
	c, msgs, err := a.Chat.Messages(ctx, id)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("show", ShowResult{Chat: c, Messages: msgs, Usage: telemetry.Summarize(c.ID, msgs)}).Print(r.Out)
	}

	fmt.Fprintln(r.Out, TitleStyle.Render(c.GetTitle()))
	fmt.Fprintln(r.Out, DimStyle.Render(c.ID+"  "+c.CreatedAt.Local().Format("2006-01-02 15:04")))
	fmt.Fprintln(r.Out)
	rend := newRenderer(a.Config.UI, r.TTY, args.Quiet)
	for _, m := range msgs {
		rend.message(r.Out, m)
	}
	return nil
}

// =============================================================================
// REMOVE
// =============================================================================

func (r *Runner) remove(ctx context.Context, a *app.App, args Args) error {
	id, err := resolveChatID(ctx, a.Store, args.ChatID)
	if err != nil {
		return err
	}
	if err := a.Chat.Load(ctx); err != nil {
		return err
	}
	c, _ := a.State.Chat(id)
	if err := a.Chat.DeleteChat(ctx, id); err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("rm", map[string]string{"deleted": id}).Print(r.Out)
	}
	if !args.Quiet {
		fmt.Fprintf(r.Out, "%s deleted %q\n", SuccessStyle.Render("✓"), c.GetTitle())
	}
	return nil
}

// =============================================================================
// EXPORT
// =============================================================================

func (r *Runner) export(ctx context.Context, a *app.App, args Args) error {
	id, err := resolveChatID(ctx, a.Store, args.ChatID)
	if err != nil {
		return err
	}
	c, msgs, err := a.Chat.Messages(ctx, id)
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	if a.Config.UI.Theme == "light" {
		opts.Theme = "light"
	}
	exporter, err := export.ForFormat(args.Format, opts)
	if err != nil {
		return ErrInvalidValue("format", args.Format, strings.Join(export.Formats, ", "))
	}
	conv := export.New(c, msgs)

	if args.Output == "" {
		data, err := exporter.Export(conv)
		if err != nil {
			return err
		}
		_, err = r.Out.Write(data)
		return err
	}

	opts.OutputDir = args.Output
	opts.OpenAfterExport = args.Open
	path, err := export.ExportToFile(conv, exporter, opts)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("export", map[string]string{"path": path}).Print(r.Out)
	}
	fmt.Fprintf(r.Out, "%s exported to %s\n", SuccessStyle.Render("✓"), path)
	return nil
}
