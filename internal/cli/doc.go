// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the command line and runs t3lepathy commands.
//
// # Key Types
//
//   - Command: Enumeration of the available commands
//   - Args: Global flags plus the raw arguments of the command
//   - Runner: Executes a command against an opened app.App
//   - ArgParser: Flag and positional parsing for command arguments
//   - JSONResponse: The --json envelope shared by every command
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	if err := cli.NewRunner().Run(ctx, cmd, args); err != nil {
//	    cli.DisplayError(os.Stderr, cmd.String(), err, args.JSON)
//	    os.Exit(cli.GetExitCode(err))
//	}
//
// # Commands Overview
//
// Conversation:
//   - chat: Interactive REPL with slash commands (default)
//   - tui: Full-screen interface
//   - ask: Single question in a new chat, reads piped stdin
//
// Stored chats:
//   - chats: List by date bucket, optionally filtered by --search
//   - show, rm, export: Take a chat id or a unique id prefix
//
// Setup:
//   - models, keys, config, version
//
// Server:
//   - serve: Local HTTP API with config hot reload
//
// Exit codes are listed in errors.go. All commands except chat and tui
// support --json.
package cli
