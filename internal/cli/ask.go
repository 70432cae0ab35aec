// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot "streamchat ask" command.
//
// Command: ask
// Short:   Send one message and print the streamed reply
//
// Examples:
//   streamchat ask "What's the weather in London?"
//   streamchat ask --markdown "Summarize the forecast"
//   streamchat --url http://127.0.0.1:8787/api/chat ask "hello"
//
// Exit codes: 0 on a completed reply, 5 when the backend fails,
// 130 when interrupted.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/session"
	"github.com/jeranaias/streamchat/internal/storage"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

var (
	markdownOnce     sync.Once
	markdownRenderer *glamour.TermRenderer
)

// renderMarkdown renders content for the terminal, returning it unchanged
// when the renderer is unavailable or fails.
func renderMarkdown(content string) string {
	markdownOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(GetTerminalWidth()-4),
		)
		if err == nil {
			markdownRenderer = r
		}
	})
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// REPLY PRINTER
// =============================================================================

// replyPrinter writes the agent message of one session as it grows. Text is
// read from store snapshots, so an event dropped by a slow subscriber only
// delays output. A replaced message (the failure text) is printed whole.
type replyPrinter struct {
	coord    *session.Coordinator
	bound    model.ConversationID
	out      io.Writer
	buffered bool // hold text until the end (markdown mode)

	printed  string
	replaced bool
}

func (p *replyPrinter) lastAgentText() (string, bool) {
	conv, ok := p.coord.Snapshot(p.bound)
	if !ok {
		return "", false
	}
	last, ok := conv.LastMessage()
	if !ok || !last.IsAgent() {
		return "", false
	}
	return last.Text, true
}

// update prints whatever the agent message gained since the last call.
func (p *replyPrinter) update() {
	if p.replaced || p.buffered {
		return
	}
	text, ok := p.lastAgentText()
	if !ok || !strings.HasPrefix(text, p.printed) {
		return
	}
	fragmentPrinter.Fprint(p.out, text[len(p.printed):])
	p.printed = text
}

// fail prints the replacement text on its own line.
func (p *replyPrinter) fail(text string) {
	if p.replaced {
		return
	}
	p.replaced = true
	if p.printed != "" {
		fmt.Fprintln(p.out)
	}
	failurePrinter.Fprintln(p.out, text)
}

// finish flushes the rest of the reply once the session is idle.
func (p *replyPrinter) finish(sess *session.StreamSession) {
	if sess.Stopped() {
		// Partial text, or the stopped notice, is kept as it stands.
		if p.buffered {
			text, _ := p.lastAgentText()
			fmt.Fprint(p.out, text)
		} else {
			p.update()
		}
		fmt.Fprintln(p.out)
		return
	}
	if sess.Outcome() == session.StateFailed {
		text, ok := p.lastAgentText()
		if !ok {
			text = p.coord.LastError()
		}
		p.fail(text)
		return
	}

	if p.buffered {
		text, _ := p.lastAgentText()
		fmt.Fprint(p.out, renderMarkdown(text))
		return
	}
	p.update()
	fmt.Fprintln(p.out)
}

// streamReply sends text and prints the reply until the session is idle.
// Events for other conversations are ignored.
func streamReply(ctx context.Context, coord *session.Coordinator, text string, out io.Writer, markdown bool) (*session.StreamSession, error) {
	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()
	events, _ := coord.Subscribe(subCtx)

	h, err := coord.Send(ctx, text)
	if err != nil {
		return nil, err
	}

	p := &replyPrinter{
		coord:    coord,
		bound:    h.Session().Bound(),
		out:      out,
		buffered: markdown,
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.ConversationID != p.bound {
				continue
			}
			switch ev.Kind {
			case storage.EventFragmentApplied:
				p.update()
			case storage.EventMessageReplaced:
				p.fail(ev.Text)
			}
		case <-h.Done():
			sess := h.Session()
			p.finish(sess)
			return sess, nil
		}
	}
}

// =============================================================================
// COMMAND
// =============================================================================

// HandleAskCommand runs "streamchat ask".
func HandleAskCommand(args Args) error {
	if strings.TrimSpace(args.Query) == "" {
		return NewValidationError("message", "", `usage: streamchat ask "message"`)
	}
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runAsk(ctx, app, args, os.Stdout)
}

func runAsk(ctx context.Context, app *App, args Args, out io.Writer) error {
	if !args.Quiet {
		userPrinter.Fprint(out, model.SenderUser.DisplayName()+": ")
		fmt.Fprintln(out, args.Query)
		agentPrinter.Fprint(out, model.SenderAgent.DisplayName()+": ")
	}

	sess, err := streamReply(ctx, app.Coordinator, args.Query, out, args.Markdown && IsStdoutTTY())
	if err != nil {
		return err
	}
	if sess.Outcome() == session.StateFailed {
		return sess.Err()
	}
	return nil
}
