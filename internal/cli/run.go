// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/aljaroudi/t3lepathy/internal/app"
	"github.com/aljaroudi/t3lepathy/internal/gateway"
	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/ui"
	uichat "github.com/aljaroudi/t3lepathy/internal/ui/chat"
)

// Runner executes parsed commands.
type Runner struct {
	Out io.Writer
	Err io.Writer
	In  io.Reader

	// Interactive is true when In is a terminal.
	Interactive bool
	// TTY is true when Out is a terminal.
	TTY bool

	// Gateway replaces the provider router and DotEnv the .env files.
	// Tests only.
	Gateway gateway.Gateway
	DotEnv  []string

	// lines builds the REPL input. Nil uses liner.
	lines func(historyFile string) (lineReader, error)
}

// NewRunner returns a runner bound to the process stdio.
func NewRunner() *Runner {
	return &Runner{
		Out:         os.Stdout,
		Err:         os.Stderr,
		In:          os.Stdin,
		Interactive: IsTTY(),
		TTY:         IsStdoutTTY(),
	}
}

// Run executes cmd.
func (r *Runner) Run(ctx context.Context, cmd Command, args Args) error {
	switch cmd {
	case CmdHelp:
		PrintUsage(r.Out)
		return nil
	case CmdVersion:
		return r.version(args)
	case CmdConfig:
		return r.config(args)
	}

	a, err := r.open(ctx, cmd, args)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	if args.Model != "" {
		if _, ok := model.Lookup(args.Model); !ok {
			return ErrInvalidValue("model", args.Model, "t3lepathy models")
		}
	}

	switch cmd {
	case CmdChat:
		return r.chat(ctx, a, args)
	case CmdTUI:
		return r.tui(ctx, a, args)
	case CmdAsk:
		return r.ask(ctx, a, args)
	case CmdChats:
		return r.chats(ctx, a, args)
	case CmdShow:
		return r.show(ctx, a, args)
	case CmdRemove:
		return r.remove(ctx, a, args)
	case CmdExport:
		return r.export(ctx, a, args)
	case CmdModels:
		return r.models(a, args)
	case CmdKeys:
		return r.keys(ctx, a, args)
	case CmdServe:
		return r.serve(ctx, a, args)
	default:
		PrintUsage(r.Err)
		return ErrInvalidValue("command", cmd.String(), "t3lepathy help")
	}
}

// open starts the application. Logs go to stderr for serve and -v, except
// for the full-screen interface which owns the terminal.
func (r *Runner) open(ctx context.Context, cmd Command, args Args) (*app.App, error) {
	opts := app.Options{
		ConfigPath: args.ConfigPath,
		DotEnv:     r.DotEnv,
		Gateway:    r.Gateway,
	}
	if args.Verbose {
		opts.LogLevel = "debug"
	}
	if cmd == CmdServe || (args.Verbose && cmd != CmdTUI) {
		opts.Log = app.LogToStderr
	}

	a, err := app.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(a.Logger)
	return a, nil
}

// tui runs the full-screen interface.
func (r *Runner) tui(ctx context.Context, a *app.App, args Args) error {
	if err := a.Chat.Load(ctx); err != nil {
		return err
	}
	return ui.Run(ctx, a.Chat, uichat.Options{
		UI:      a.Config.UI,
		Model:   args.Model,
		Version: Version,
	})
}
