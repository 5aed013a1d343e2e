// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - command line parsing for t3lepathy.
package cli

import (
	"fmt"
	"io"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdTUI
	CmdAsk
	CmdChats
	CmdShow
	CmdRemove
	CmdExport
	CmdModels
	CmdKeys
	CmdConfig
	CmdServe
	CmdVersion
	CmdHelp
)

var commandNames = map[Command]string{
	CmdChat:    "chat",
	CmdTUI:     "tui",
	CmdAsk:     "ask",
	CmdChats:   "chats",
	CmdShow:    "show",
	CmdRemove:  "rm",
	CmdExport:  "export",
	CmdModels:  "models",
	CmdKeys:    "keys",
	CmdConfig:  "config",
	CmdServe:   "serve",
	CmdVersion: "version",
	CmdHelp:    "help",
}

// String returns the name the command is invoked with.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Quiet      bool
	Verbose    bool
	Model      string
	JSON       bool

	// Command-specific
	Query      string
	ChatID     string
	Subcommand string
	Format     string
	Output     string
	Open       bool
	Search     string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `t3lepathy - chat with OpenAI, Google and Anthropic models from the terminal

Usage:
  t3lepathy                          Interactive chat (default)
  t3lepathy chat                     Interactive chat
  t3lepathy tui                      Full-screen interface
  t3lepathy ask "question"           Ask a single question in a new chat
  t3lepathy chats [--search TEXT]    List chats by date
  t3lepathy show <id>                Print a chat
  t3lepathy rm <id>                  Delete a chat and its messages
  t3lepathy export <id>              Export a chat
    --format md|html|json            Export format (default: md)
    --output DIR                     Write a file into DIR instead of stdout
    --open                           Open the file after writing it
  t3lepathy models                   List models and their capabilities
  t3lepathy keys                     Show configured providers
  t3lepathy keys set <provider> <key>
                                     Store an API key (google, openai, anthropic)
  t3lepathy config [show|path]       Show the configuration or its path
  t3lepathy config init [--force]    Write a default config file
  t3lepathy serve                    Run the local HTTP API
  t3lepathy version                  Version information
  t3lepathy help                     This text

  A chat <id> may be shortened to any unique prefix.

Chat Commands:
  /new [title]          Start a new chat
  /chats                List chats
  /switch <n|id>        Switch to a chat by number or id
  /rename <title>       Rename the current chat
  /delete               Delete the current chat
  /model [name]         Show or set the model
  /length short|medium|open
                        Set the response length
  /system [prompt]      Show or set the system prompt
  /ground on|off        Toggle web search grounding
  /attach <path>        Attach a file to the next message
  /cost                 Token usage and cost of the current chat
  /help                 Show chat commands
  /quit                 Exit (also Ctrl+D)

  Ctrl+C cancels a reply that is still streaming.

Global Flags:
  --config PATH   Config file (default: ~/.t3lepathy/config.toml)
  -q, --quiet     Minimal output
  -v, --verbose   Debug logging to stderr
  --model NAME    Model for this run
  --json          Output in JSON format

Environment:
  OPENAI_API_KEY, GOOGLE_API_KEY, ANTHROPIC_API_KEY
                  Stored on first run when no key is set for the provider
  T3_DATA_DIR, T3_LOG_LEVEL, T3_SERVER_ADDR, ...
                  Override config file values

Examples:
  t3lepathy ask "What is a goroutine?"
  t3lepathy ask --model gpt-4o-mini "Summarize" < notes.md
  t3lepathy chats --search golang
  t3lepathy export 3f1c --format html --output . --open
  t3lepathy keys set openai sk-...

Version: %s
`

// PrintUsage writes the usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "t3lepathy version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments (without the program name) and
// returns the command and its args.
func Parse(argv []string) (Command, Args) {
	remaining, parsed := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdChat, parsed
	}

	first := remaining[0]
	cmd := strings.ToLower(first)
	remaining = remaining[1:]
	parsed.Raw = remaining
	p := NewArgParser(remaining)

	switch cmd {
	case "chat":
		return CmdChat, parsed

	case "tui", "ui":
		return CmdTUI, parsed

	case "ask":
		parsed.Query = strings.Join(remaining, " ")
		return CmdAsk, parsed

	case "chats", "ls", "list":
		parsed.Search = p.Flag("search")
		return CmdChats, parsed

	case "show":
		parsed.ChatID = p.Positional(0)
		return CmdShow, parsed

	case "rm", "delete":
		parsed.ChatID = p.Positional(0)
		return CmdRemove, parsed

	case "export":
		parsed.ChatID = p.Positional(0)
		parsed.Format = p.FlagOrDefault("format", "md")
		parsed.Output = p.Flag("output")
		parsed.Open = p.BoolFlag("open")
		return CmdExport, parsed

	case "models":
		return CmdModels, parsed

	case "keys", "key":
		parsed.Subcommand = p.Subcommand()
		return CmdKeys, parsed

	case "config":
		parsed.Subcommand = p.Subcommand()
		return CmdConfig, parsed

	case "serve", "server":
		return CmdServe, parsed

	case "version", "--version":
		return CmdVersion, parsed

	case "help", "-h", "--help":
		return CmdHelp, parsed

	default:
		// Anything else is a question.
		parsed.Query = strings.Join(append([]string{first}, remaining...), " ")
		return CmdAsk, parsed
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
// Flags are recognized before and after the command name.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsed Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsed.Quiet = true
		case "-v", "--verbose":
			parsed.Verbose = true
		case "--json":
			parsed.JSON = true
		case "--model", "--config":
			if i+1 < len(args) {
				i++
				if arg == "--model" {
					parsed.Model = args[i]
				} else {
					parsed.ConfigPath = args[i]
				}
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				parsed.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--config="):
				parsed.ConfigPath = strings.TrimPrefix(arg, "--config=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsed
}
