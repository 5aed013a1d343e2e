// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - the interactive chat REPL.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/aljaroudi/t3lepathy/internal/app"
	"github.com/aljaroudi/t3lepathy/internal/chat"
	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/util"
)

// maxAttachmentBytes caps a file attached with /attach.
const maxAttachmentBytes = 20 << 20

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader reads REPL input.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// linerInput is a lineReader with line editing and a history file.
type linerInput struct {
	*liner.State
	historyFile string
}

func newLinerInput(historyFile string) (lineReader, error) {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	in := &linerInput{State: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return in, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (in *linerInput) Close() error {
	if err := os.MkdirAll(filepath.Dir(in.historyFile), util.DirPerm); err == nil {
		if f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = in.WriteHistory(f)
			f.Close()
		}
	}
	return in.State.Close()
}

// =============================================================================
// REPL
// =============================================================================

// repl is one interactive chat session.
type repl struct {
	a    *app.App
	orch *chat.Orchestrator
	in   lineReader
	out  io.Writer
	rend *renderer
	args Args

	// model overrides the stored current model for this session.
	model     string
	grounding bool
	pending   model.Content
}

func (r *Runner) chat(ctx context.Context, a *app.App, args Args) error {
	if err := a.Chat.Load(ctx); err != nil {
		return err
	}

	newInput := r.lines
	if newInput == nil {
		newInput = newLinerInput
	}
	dataDir, err := a.Config.DataDir()
	if err != nil {
		return err
	}
	in, err := newInput(filepath.Join(dataDir, "chat_history"))
	if err != nil {
		return err
	}
	defer in.Close()

	s := &repl{
		a:         a,
		orch:      a.Chat,
		in:        in,
		out:       r.Out,
		rend:      newRenderer(a.Config.UI, r.TTY, args.Quiet),
		args:      args,
		model:     args.Model,
		grounding: a.Config.UI.Grounding,
	}
	return s.run(ctx)
}

func (s *repl) run(ctx context.Context) error {
	if !s.args.Quiet {
		s.banner()
	}
	for {
		line, err := s.in.Prompt(s.currentModel().Name + "> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(s.out)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.in.AppendHistory(line)

		if strings.HasPrefix(line, "/") {
			quit, err := s.command(ctx, line)
			if err != nil {
				s.printError(err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := s.send(ctx, line); err != nil {
			s.printError(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *repl) banner() {
	c, _ := s.a.State.Chat(s.a.State.CurrentChatID())
	fmt.Fprintln(s.out, TitleStyle.Render("t3lepathy")+" "+DimStyle.Render(Version))
	fmt.Fprintf(s.out, "%s %s\n", DimStyle.Render("chat:"), c.GetTitle())
	fmt.Fprintln(s.out, DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	if len(s.a.Settings.ConfiguredProviders()) == 0 {
		fmt.Fprintln(s.out, WarningStyle.Render("No API keys yet. Add one with /quit then: t3lepathy keys set <provider> <key>"))
	}
	fmt.Fprintln(s.out)
}

func (s *repl) printError(err error) {
	fmt.Fprintf(s.out, "%s %v\n", ErrorStyle.Render("Error:"), err)
}

// currentModel returns the session override or the stored current model.
func (s *repl) currentModel() model.Model {
	if s.model != "" {
		if m, ok := model.Lookup(s.model); ok {
			return m
		}
	}
	return s.orch.Settings().CurrentModel()
}

// send sends line with any pending attachments to the current chat.
// Attachments stay pending when the request is rejected before anything is
// written.
func (s *repl) send(ctx context.Context, line string) error {
	content := append(model.Content{model.Text{Text: line}}, s.pending...)
	req := chat.SendRequest{
		ChatID:    s.a.State.CurrentChatID(),
		Content:   content,
		Model:     s.model,
		Grounding: s.grounding,
	}

	err := sendAndPrint(ctx, s.orch, req, s.out, s.rend)
	var verr *chat.ValidationError
	if !errors.As(err, &verr) {
		s.pending = nil
	}
	if chat.IsCanceled(err) {
		fmt.Fprintln(s.out, WarningStyle.Render("[cancelled]"))
		return nil
	}
	fmt.Fprintln(s.out)
	return err
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// command runs a slash command and reports whether the REPL should exit.
func (s *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		s.help()
		return false, nil
	case "new":
		return false, s.newChat(ctx, arg)
	case "chats":
		return false, s.listChats(ctx)
	case "switch":
		return false, s.switchChat(ctx, arg)
	case "rename":
		return false, s.rename(ctx, arg)
	case "delete":
		return false, s.deleteChat(ctx)
	case "model":
		return false, s.setModel(ctx, arg)
	case "length":
		return false, s.setLength(ctx, arg)
	case "system":
		return false, s.setSystem(ctx, arg)
	case "ground":
		return false, s.setGrounding(arg)
	case "attach":
		return false, s.attach(arg)
	case "cost":
		return false, s.cost(ctx)
	default:
		return false, ErrInvalidValue("command", "/"+name, "/help")
	}
}

func (s *repl) help() {
	usage := strings.SplitN(usageText, "Chat Commands:\n", 2)[1]
	usage = strings.SplitN(usage, "\nGlobal Flags:", 2)[0]
	fmt.Fprint(s.out, usage)
}

func (s *repl) done(format string, args ...any) {
	fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render("✓"), fmt.Sprintf(format, args...))
}

func (s *repl) newChat(ctx context.Context, title string) error {
	c, err := s.orch.NewChat(ctx, title)
	if err != nil {
		return err
	}
	s.done("started %q", c.GetTitle())
	return nil
}

func (s *repl) listChats(ctx context.Context) error {
	now := time.Now()
	chats := s.a.State.Chats()
	entries := make([]ChatEntry, 0, len(chats))
	for _, c := range chats {
		n, err := s.a.Store.CountMessages(ctx, c.ID)
		if err != nil {
			return err
		}
		entries = append(entries, ChatEntry{Chat: c, Bucket: util.DateBucket(c.CreatedAt, now), Messages: n})
	}
	printChatList(s.out, entries, s.a.State.CurrentChatID())
	return nil
}

// switchChat selects a chat by its number in /chats, its id or an id prefix,
// then prints it.
func (s *repl) switchChat(ctx context.Context, arg string) error {
	if arg == "" {
		return ErrMissingArgument("chat", "/switch 2")
	}
	id := ""
	chats := s.a.State.Chats()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(chats) {
			return &ValidationError{Field: "chat", Value: arg, Reason: fmt.Sprintf("pick 1 to %d", len(chats))}
		}
		id = chats[n-1].ID
	} else {
		resolved, err := resolveChatID(ctx, s.a.Store, arg)
		if err != nil {
			return err
		}
		id = resolved
	}

	if err := s.orch.SelectChat(ctx, id); err != nil {
		return err
	}
	c, _ := s.a.State.Chat(id)
	fmt.Fprintln(s.out, TitleStyle.Render(c.GetTitle()))
	fmt.Fprintln(s.out)
	for _, m := range s.a.State.Messages() {
		s.rend.message(s.out, m)
	}
	return nil
}

func (s *repl) rename(ctx context.Context, title string) error {
	if title == "" {
		return ErrMissingArgument("title", "/rename Trip to Lisbon")
	}
	if err := s.orch.RenameChat(ctx, s.a.State.CurrentChatID(), title); err != nil {
		return err
	}
	s.done("renamed to %q", title)
	return nil
}

func (s *repl) deleteChat(ctx context.Context) error {
	id := s.a.State.CurrentChatID()
	old, _ := s.a.State.Chat(id)
	if err := s.orch.DeleteChat(ctx, id); err != nil {
		return err
	}
	next, _ := s.a.State.Chat(s.a.State.CurrentChatID())
	s.done("deleted %q, now in %q", old.GetTitle(), next.GetTitle())
	return nil
}

// setModel stores name as the current model. Without a name it lists the
// models.
func (s *repl) setModel(ctx context.Context, name string) error {
	if name == "" {
		printModels(s.out, modelEntries(s.orch.Settings(), s.currentModel().Name))
		return nil
	}
	m, ok := model.Lookup(name)
	if !ok {
		return ErrInvalidValue("model", name, "/model to list models")
	}
	if err := s.orch.Settings().SetCurrentModel(ctx, m.Name); err != nil {
		return err
	}
	s.model = ""
	s.done("model set to %s", m.Name)
	if _, ok := s.orch.Settings().APIKey(m.Provider); !ok {
		fmt.Fprintln(s.out, WarningStyle.Render(fmt.Sprintf("no %s key; add one with: t3lepathy keys set %s <key>", m.Provider, m.Provider)))
	}
	return nil
}

func (s *repl) setLength(ctx context.Context, arg string) error {
	if arg == "" {
		fmt.Fprintln(s.out, s.orch.Settings().ResponseLength())
		return nil
	}
	length, err := model.ParseResponseLength(arg)
	if err != nil {
		return ErrInvalidValue("length", arg, "short, medium or open")
	}
	if err := s.orch.Settings().SetResponseLength(ctx, length); err != nil {
		return err
	}
	s.done("response length set to %s", length)
	return nil
}

func (s *repl) setSystem(ctx context.Context, prompt string) error {
	if prompt == "" {
		fmt.Fprintln(s.out, s.orch.Settings().SystemPrompt())
		return nil
	}
	if err := s.orch.Settings().SetSystemPrompt(ctx, prompt); err != nil {
		return err
	}
	s.done("system prompt updated")
	return nil
}

func (s *repl) setGrounding(arg string) error {
	if arg != "" {
		on, err := ParseBoolString(arg)
		if err != nil {
			return ErrInvalidValue("grounding", arg, "on or off")
		}
		s.grounding = on
	}
	state := "off"
	if s.grounding {
		state = "on"
	}
	s.done("web search grounding %s", state)
	return nil
}

// attach reads a file and queues it for the next message. The current model
// must accept its type.
func (s *repl) attach(path string) error {
	if path == "" {
		return ErrMissingArgument("path", "/attach ./notes.md")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &ValidationError{Field: "path", Value: path, Reason: "is a directory"}
	}
	if info.Size() > maxAttachmentBytes {
		return &ValidationError{Field: "path", Value: path, Reason: "larger than " + formatBytes(maxAttachmentBytes)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	mediaType := detectMediaType(name, data)
	m := s.currentModel()
	if !model.Accepts(m, name, mediaType) {
		accepted := model.AcceptedFileTypes(m)
		if len(accepted) == 0 {
			return &ValidationError{Field: "attachment", Value: name, Reason: m.Name + " takes text only"}
		}
		return &ValidationError{Field: "attachment", Value: name, Reason: m.Name + " does not accept " + mediaType}
	}

	s.pending = append(s.pending, model.PartFromFile(name, mediaType, data))
	s.done("attached %s (%s), sent with your next message", name, formatBytes(len(data)))
	return nil
}

// detectMediaType prefers the extension and falls back to sniffing.
func detectMediaType(name string, data []byte) string {
	mediaType := mime.TypeByExtension(filepath.Ext(name))
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		return parsed
	}
	return mediaType
}

func (s *repl) cost(ctx context.Context) error {
	usage, err := s.orch.Usage(ctx, s.a.State.CurrentChatID())
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s%d\n", RenderLabel("Messages"), usage.Messages)
	fmt.Fprintf(s.out, "%s%s in / %s out\n", RenderLabel("Tokens"),
		util.FormatTokens(usage.InputTokens), util.FormatTokens(usage.OutputTokens))
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Cost"), util.FormatCost(usage.Cost))
	for _, mu := range usage.ByModel {
		fmt.Fprintf(s.out, "  %s %s\n", DimStyle.Render(mu.Model), util.FormatCost(mu.Cost))
	}
	if usage.Unpriced > 0 {
		fmt.Fprintln(s.out, DimStyle.Render(fmt.Sprintf("%d messages have no known price", usage.Unpriced)))
	}
	if s.a.Tracker != nil {
		session := s.a.Tracker.GetCurrentSession()
		fmt.Fprintf(s.out, "%s%s over %d replies\n", RenderLabel("This session"), util.FormatCost(session.TotalCost), session.Queries)
	}
	return nil
}
