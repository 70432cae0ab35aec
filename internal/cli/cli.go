// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for streamchat.
package cli

import (
	"fmt"
	"os"
	"runtime"
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
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdConfig
	CmdVersion
	CmdHelp
)

func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdAsk:
		return "ask"
	case CmdChat:
		return "chat"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string // --config: explicit config file
	URL        string // --url: backend endpoint, implies --mock=false
	FrameMode  string // --frame-mode: raw, tagged or ndjson
	Model      string
	Mock       *bool // nil leaves the config value alone
	Verbose    bool
	Quiet      bool
	NoColor    bool

	// Command-specific
	Query      string
	Markdown   bool
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `streamchat - streaming chat client with multiple conversations

Usage:
  streamchat                       Start the TUI (default)
  streamchat ask "message"         Send one message and print the streamed reply
  streamchat chat                  Line-based interactive chat
  streamchat config [subcommand]   Show or edit configuration
  streamchat version               Show version information
  streamchat help                  Show this help

Global Flags:
  --config PATH          Use this config file (toml, json or yaml)
  --url URL              Backend endpoint (disables the mock backend)
  --frame-mode MODE      Stream framing: raw, tagged, ndjson
  -m, --model NAME       Model name sent with each request
  --mock / --no-mock     Use or bypass the built-in mock backend
  --no-color             Disable colored output
  -v, --verbose          Debug logging
  -q, --quiet            Minimal output

Ask Flags:
  --markdown             Render the finished reply as markdown

Config Subcommands:
  show                   Print the effective configuration (headers redacted)
  path                   Print the config file location
  init                   Write a default config file if none exists
  get KEY                Print one value, e.g. backend.frame_mode
  set KEY VALUE          Change one value and save
  keys                   List settable keys

Chat Commands:
  /new  /list  /switch N  /delete N  /clear  /help  /quit

Examples:
  streamchat ask "What's the weather in London?"
  streamchat --url http://127.0.0.1:8787/api/chat?format=tagged --frame-mode tagged chat
  streamchat config set mock.chunk_interval_ms 25

Environment:
  STREAMCHAT_CONFIG, STREAMCHAT_BACKEND_URL, STREAMCHAT_FRAME_MODE,
  STREAMCHAT_MODEL, STREAMCHAT_MOCK, STREAMCHAT_LOG_LEVEL, STREAMCHAT_LOG_FILE
`

// PrintUsage writes the help text to stdout.
func PrintUsage() {
	fmt.Print(usageText)
}

// PrintVersion writes version information to stdout.
func PrintVersion() {
	fmt.Printf("%s %s\n", TitleStyle.Render("streamchat"), Version)
	fmt.Printf("  %s %s\n", LabelStyle.Render("Commit:"), GitCommit)
	fmt.Printf("  %s %s\n", LabelStyle.Render("Built:"), BuildDate)
	fmt.Printf("  %s %s %s/%s\n", LabelStyle.Render("Go:"), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses os.Args and returns the command and arguments.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses the given arguments (without the program name).
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := remaining[0]
	remaining = remaining[1:]

	switch cmd {
	case "ask", "a":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "chat", "c":
		parsedArgs.Raw = remaining
		return CmdChat, parsedArgs

	case "config", "cfg":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs

	case "version", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		// Bare text starts the TUI with it as the first message.
		parsedArgs.Raw = append([]string{cmd}, remaining...)
		return CmdTUI, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	value := func(i *int) string {
		if *i+1 < len(args) {
			*i++
			return args[*i]
		}
		return ""
	}
	setMock := func(v bool) { parsedArgs.Mock = &v }

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "--no-color":
			parsedArgs.NoColor = true
		case "--mock":
			setMock(true)
		case "--no-mock":
			setMock(false)
		case "--config":
			parsedArgs.ConfigPath = value(&i)
		case "--url":
			parsedArgs.URL = value(&i)
		case "--frame-mode":
			parsedArgs.FrameMode = value(&i)
		case "-m", "--model":
			parsedArgs.Model = value(&i)
		default:
			switch {
			case strings.HasPrefix(arg, "--config="):
				parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
			case strings.HasPrefix(arg, "--url="):
				parsedArgs.URL = strings.TrimPrefix(arg, "--url=")
			case strings.HasPrefix(arg, "--frame-mode="):
				parsedArgs.FrameMode = strings.TrimPrefix(arg, "--frame-mode=")
			case strings.HasPrefix(arg, "--model="):
				parsedArgs.Model = strings.TrimPrefix(arg, "--model=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsedArgs
}

// parseAskArgs parses ask command specific arguments.
func parseAskArgs(args *Args, remaining []string) {
	p := NewArgParser(remaining, "markdown")
	args.Markdown = p.BoolFlag("markdown")
	args.Query = JoinPositionalArgs(p, 0)
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) > 0 {
		args.Subcommand = remaining[0]
		if len(remaining) > 1 {
			args.ConfigKey = remaining[1]
		}
		if len(remaining) > 2 {
			args.ConfigVal = strings.Join(remaining[2:], " ")
		}
	}
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

// HandleAsk handles the "ask" command.
func HandleAsk(args Args) {
	exitOnError(HandleAskCommand(args))
}

// HandleChat handles the "chat" command.
func HandleChat(args Args) {
	exitOnError(HandleChatCommand(args))
}

// HandleConfig handles the "config" command.
func HandleConfig(args Args) {
	exitOnError(HandleConfigCommand(args))
}

// HandleVersion handles the "version" command.
func HandleVersion() {
	PrintVersion()
}

// HandleHelp handles the "help" command.
func HandleHelp() {
	PrintUsage()
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	DisplayError(err)
	os.Exit(GetExitCode(err))
}
