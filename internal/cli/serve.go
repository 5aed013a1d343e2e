// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - the local HTTP API with config hot reload.

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aljaroudi/t3lepathy/internal/app"
	"github.com/aljaroudi/t3lepathy/internal/config"
	"github.com/aljaroudi/t3lepathy/internal/export"
	"github.com/aljaroudi/t3lepathy/internal/server"
	"github.com/aljaroudi/t3lepathy/internal/service"
)

// serve runs the HTTP API and the config watcher until interrupted.
func (r *Runner) serve(ctx context.Context, a *app.App, args Args) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Chat.Load(ctx); err != nil {
		return err
	}

	exportOpts := export.DefaultOptions()
	if a.Config.UI.Theme == "light" {
		exportOpts.Theme = "light"
	}
	srv := server.New(a.Chat, server.Options{
		Addr:              a.Config.Server.Addr,
		Token:             a.Config.Server.Token,
		RequestsPerSecond: a.Config.Server.RequestsPerSecond,
		Burst:             a.Config.Server.Burst,
		Tracker:           a.Tracker,
		Export:            exportOpts,
		Version:           Version,
		Logger:            a.Logger.With("component", "server"),
	})

	if !args.Quiet {
		fmt.Fprintf(r.Err, "%s serving on http://%s\n", SuccessStyle.Render("✓"), a.Config.Server.Addr)
	}
	return service.Group{srv, configWatcher(a)}.Run(ctx)
}

// configWatcher applies edits of the config file while serving.
func configWatcher(a *app.App) service.Service {
	log := a.Logger.With("component", "config")
	return service.Func{
		ServiceName: "config-watch",
		Fn: func(ctx context.Context) error {
			return config.Watch(ctx, a.ConfigPath, func(cfg *config.Config, err error) {
				if err != nil {
					log.Warn("config reload rejected", "path", a.ConfigPath, "error", err)
					return
				}
				if restart := a.Reload(cfg); len(restart) > 0 {
					log.Warn("config changed; restart to apply", "sections", restart)
				}
			})
		},
	}
}
