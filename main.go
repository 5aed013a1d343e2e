// t3lepathy - chat with OpenAI, Google and Anthropic models from the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"

	"github.com/aljaroudi/t3lepathy/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse(os.Args[1:])

	// Interrupts are handled per command: a send cancels its reply, serve
	// shuts down, the interfaces read Ctrl+C as a key.
	if err := cli.NewRunner().Run(context.Background(), cmd, args); err != nil {
		cli.DisplayError(os.Stderr, cmd.String(), err, args.JSON)
		os.Exit(cli.GetExitCode(err))
	}
}
