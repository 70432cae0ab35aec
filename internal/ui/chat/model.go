// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/streamchat/internal/session"
	"github.com/jeranaias/streamchat/internal/storage"
	"github.com/jeranaias/streamchat/internal/ui/styles"
)

// Input placeholders.
const (
	PlaceholderReady   = "Type your message..."
	PlaceholderWaiting = "Waiting for response..."
)

// NoticeStopped is shown after a reply is stopped with the cancel key.
const NoticeStopped = "Response stopped"

// DefaultTitle is shown in the header.
const DefaultTitle = "Weather Agent"

const (
	defaultSidebarWidth = 28
	// Below this width the sidebar is hidden.
	minWidthForSidebar = 60
)

// Options configures the chat view.
type Options struct {
	Theme        *styles.Theme
	Keys         *KeyMap
	Title        string
	Subtitle     string
	Markdown     bool
	SidebarWidth int
	// Initial is sent as soon as the program starts, if set.
	Initial string
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	coord *session.Coordinator
	theme *styles.Theme
	keys  KeyMap

	// Components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	markdown *markdownRenderer

	// Layout
	width        int
	height       int
	sidebarWidth int
	ready        bool

	title    string
	subtitle string
	useMD    bool
	initial  string

	// Store subscription
	events      <-chan storage.Event
	unsubscribe context.CancelFunc

	// Request state
	loading    bool
	cancelSend context.CancelFunc
	errLine    string
	notice     string
}

// New creates a chat model driving coord. It subscribes to store events
// immediately; call Close once the program exits.
func New(coord *session.Coordinator, opts Options) Model {
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme(styles.ModeAuto)
	}
	keys := DefaultKeyMap()
	if opts.Keys != nil {
		keys = *opts.Keys
	}
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}
	if opts.SidebarWidth <= 0 {
		opts.SidebarWidth = defaultSidebarWidth
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = PlaceholderReady
	ti.PlaceholderStyle = opts.Theme.InputPlaceholder
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = opts.Theme.Spinner

	h := help.New()
	h.ShortSeparator = "  "

	ctx, cancel := context.WithCancel(context.Background())
	events, _ := coord.Subscribe(ctx)

	return Model{
		coord:        coord,
		theme:        opts.Theme,
		keys:         keys,
		viewport:     vp,
		input:        ti,
		spinner:      sp,
		help:         h,
		markdown:     newMarkdownRenderer(opts.Theme.MarkdownStyle()),
		sidebarWidth: opts.SidebarWidth,
		title:        opts.Title,
		subtitle:     opts.Subtitle,
		useMD:        opts.Markdown,
		initial:      opts.Initial,
		events:       events,
		unsubscribe:  cancel,
		loading:      coord.IsLoading(),
		errLine:      coord.LastError(),
	}
}

// Init starts the event reader and the cursor blink, and queues the
// initial message.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForEvent(m.events), textinput.Blink}
	if m.initial != "" {
		text := m.initial
		cmds = append(cmds, func() tea.Msg { return submitMsg{text: text} })
	}
	return tea.Batch(cmds...)
}

// Close cancels any in-flight reply and ends the store subscription.
func (m Model) Close() {
	if m.cancelSend != nil {
		m.cancelSend()
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Loading reports whether the view considers a reply in flight.
func (m Model) Loading() bool { return m.loading }

// ErrorLine returns the error text shown under the messages.
func (m Model) ErrorLine() string { return m.errLine }

// InputValue returns the current input text.
func (m Model) InputValue() string { return m.input.Value() }

// InputPlaceholder returns the input placeholder.
func (m Model) InputPlaceholder() string { return m.input.Placeholder }

// InputFocused reports whether the input accepts keys.
func (m Model) InputFocused() bool { return m.input.Focused() }
