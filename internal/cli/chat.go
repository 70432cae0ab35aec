// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive "streamchat chat" REPL.
//
// Command: chat
// Short:   Line-based chat with multiple conversations
//
// Interactive Commands:
//   /new              Start a new conversation and switch to it
//   /list, /ls        List conversations (the active one is marked)
//   /switch N         Switch to conversation N from /list
//   /delete N         Delete conversation N (default: the active one)
//   /clear            Clear the active conversation's messages
//   /history          Print the active conversation
//   /help, /h         Show commands
//   /quit, /q         Exit
//   Ctrl+C            Cancel the reply being streamed
//   Ctrl+D            Exit
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for the REPL.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads saved history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeSlashCommand)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with 0600 permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

var slashCommands = []string{"/new", "/list", "/switch ", "/delete ", "/clear", "/history", "/help", "/quit"}

func completeSlashCommand(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	var out []string
	for _, c := range slashCommands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// REPL
// =============================================================================

// chatREPL executes input lines against an App.
type chatREPL struct {
	app   *App
	out   io.Writer
	quiet bool
}

// errQuit ends the loop without an error.
var errQuit = errors.New("quit")

// HandleChatCommand runs "streamchat chat".
func HandleChatCommand(args Args) error {
	if args.NoColor {
		ForceColorsEnabled(false)
	}

	cfg, path, err := LoadConfig(args)
	if err != nil {
		return err
	}
	var logOut io.Writer
	if args.Verbose {
		logOut = os.Stderr
	}
	app, err := NewApp(cfg, path, AppOptions{LogOutput: logOut})
	if err != nil {
		return err
	}
	defer app.Close()

	input := NewChatCLI()
	defer input.Close()

	r := &chatREPL{app: app, out: os.Stdout, quiet: args.Quiet}
	if !args.Quiet {
		r.printBanner()
	}

	for {
		line, err := input.ReadInput(r.prompt())
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			// io.EOF on Ctrl+D or end of piped input
			fmt.Fprintln(r.out)
			return nil
		}

		if err := r.execute(context.Background(), line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			DisplayError(err)
		}
	}
}

func (r *chatREPL) printBanner() {
	fmt.Fprintln(r.out, TitleStyle.Render("streamchat")+" "+DimStyle.Render(Version))
	fmt.Fprintln(r.out, DimStyle.Render("backend: "+mockLabel(r.app.Config)))
	fmt.Fprintln(r.out, DimStyle.Render("Type a message, or /help for commands. Ctrl+D exits."))
	fmt.Fprintln(r.out)
}

func (r *chatREPL) prompt() string {
	conv := r.app.Coordinator.ActiveSnapshot()
	return "[" + util.TruncateWidth(conv.Title, 24) + "] > "
}

// execute handles one input line: a slash command or a message.
func (r *chatREPL) execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return r.send(ctx, line)
	}

	p := NewArgParser(strings.Fields(line))
	coord := r.app.Coordinator

	switch p.Subcommand() {
	case "/quit", "/q", "/exit":
		return errQuit

	case "/help", "/h":
		fmt.Fprintln(r.out, "Commands: /new  /list  /switch N  /delete [N]  /clear  /history  /quit")

	case "/new", "/n":
		coord.NewConversation()
		r.notice("Started " + coord.ActiveSnapshot().Title)

	case "/list", "/ls":
		r.printList()

	case "/switch", "/s":
		convs := coord.Conversations()
		idx, err := ParseIndex(p.Positional(1), len(convs))
		if err != nil {
			return err
		}
		coord.SelectConversation(convs[idx].ID)
		r.notice("Switched to " + convs[idx].Title)

	case "/delete", "/d":
		convs := coord.Conversations()
		target := coord.Active()
		title := coord.ActiveSnapshot().Title
		if p.Positional(1) != "" {
			idx, err := ParseIndex(p.Positional(1), len(convs))
			if err != nil {
				return err
			}
			target, title = convs[idx].ID, convs[idx].Title
		}
		coord.DeleteConversation(target)
		r.notice("Deleted " + title)

	case "/clear", "/c":
		coord.ClearConversation(coord.Active())
		r.notice("Cleared " + coord.ActiveSnapshot().Title)

	case "/history":
		r.printHistory()

	default:
		return NewValidationError("command", p.Subcommand(), "unknown command, try /help")
	}
	return nil
}

// send streams one reply. Ctrl+C cancels only this reply.
func (r *chatREPL) send(parent context.Context, text string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	if !r.quiet {
		agentPrinter.Fprint(r.out, model.SenderAgent.DisplayName()+": ")
	}
	// A failed or stopped reply is already shown inline.
	if _, err := streamReply(ctx, r.app.Coordinator, text, r.out, false); err != nil {
		fmt.Fprintln(r.out)
		return err
	}
	return nil
}

func (r *chatREPL) notice(msg string) {
	hintPrinter.Fprintln(r.out, msg)
}

func (r *chatREPL) printList() {
	for i, s := range r.app.Coordinator.Conversations() {
		marker := "  "
		title := s.Title
		if s.Active {
			marker = "* "
			title = ActiveStyle.Render(title)
		}
		fmt.Fprintf(r.out, "%s%2d. %s %s\n", marker, i+1, title,
			DimStyle.Render(fmt.Sprintf("(%d messages)", s.MessageCount)))
	}
}

func (r *chatREPL) printHistory() {
	conv := r.app.Coordinator.ActiveSnapshot()
	if len(conv.Messages) == 0 {
		r.notice("No messages yet.")
		return
	}
	for _, m := range conv.Messages {
		printer := agentPrinter
		if m.IsUser() {
			printer = userPrinter
		}
		printer.Fprintf(r.out, "%s %s: ", m.Timestamp, m.Sender.DisplayName())
		fmt.Fprintln(r.out, m.Text)
	}
}
