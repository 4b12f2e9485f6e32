package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/chatwidget/pkg/widget/history"
	"github.com/go-go-golems/chatwidget/pkg/widget/render"
	"github.com/rs/zerolog/log"
)

// terminalChrome keeps the widget state in a render.Transcript and prints
// it to a terminal. Messages are printed by Flush once they stop changing,
// rendered as markdown when the output is a terminal.
type terminalChrome struct {
	*render.Transcript

	out      io.Writer
	renderer *glamour.TermRenderer

	titleStyle  lipgloss.Style
	userStyle   lipgloss.Style
	systemStyle lipgloss.Style
	dimStyle    lipgloss.Style
	alertStyle  lipgloss.Style

	mu      sync.Mutex
	printed map[string]string
}

var _ render.Chrome = &terminalChrome{}

func newTerminalChrome(out io.Writer, styled bool) *terminalChrome {
	t := &terminalChrome{
		Transcript: render.NewTranscript(),
		out:        out,
		printed:    map[string]string{},

		titleStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),
		userStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		systemStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		dimStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		alertStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
	if !styled {
		plain := lipgloss.NewStyle()
		t.titleStyle, t.userStyle, t.systemStyle = plain, plain, plain
		t.dimStyle, t.alertStyle = plain, plain
		return t
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		log.Warn().Err(err).Str("component", "terminal").Msg("markdown renderer unavailable, printing plain text")
	} else {
		t.renderer = r
	}
	return t
}

func (t *terminalChrome) Mount(title string) {
	wasMounted := t.Transcript.Mounted()
	t.Transcript.Mount(title)
	if !wasMounted {
		t.println(t.titleStyle.Render("── " + title + " ──"))
	}
}

func (t *terminalChrome) Unmount() {
	wasMounted := t.Transcript.Mounted()
	t.Transcript.Unmount()
	if wasMounted {
		t.println(t.dimStyle.Render("(chat closed, /open to reopen)"))
	}
}

func (t *terminalChrome) ClearMessages() {
	t.Transcript.ClearMessages()
	t.mu.Lock()
	t.printed = map[string]string{}
	t.mu.Unlock()
	t.println(t.dimStyle.Render("(conversation cleared)"))
}

func (t *terminalChrome) ShowThinking() {
	t.Transcript.ShowThinking()
	t.println(t.dimStyle.Render("…"))
}

func (t *terminalChrome) SetLauncherVisible(visible bool) {
	was := t.Transcript.LauncherVisible()
	t.Transcript.SetLauncherVisible(visible)
	if visible && !was {
		t.println(t.dimStyle.Render("(launcher shown, /open to start chatting)"))
	}
}

func (t *terminalChrome) Alert(text string) {
	t.Transcript.Alert(text)
	t.println(t.alertStyle.Render("! " + text))
}

// Flush prints every message whose text changed since it was last printed.
func (t *terminalChrome) Flush() {
	for _, m := range t.Transcript.Messages() {
		t.mu.Lock()
		prev, seen := t.printed[m.ID]
		if seen && prev == m.Text {
			t.mu.Unlock()
			continue
		}
		t.printed[m.ID] = m.Text
		t.mu.Unlock()
		t.printMessage(m)
	}
}

func (t *terminalChrome) printMessage(m render.Message) {
	name := t.systemStyle.Render("bot")
	if m.From == history.SenderUser {
		name = t.userStyle.Render("you")
	}
	t.println(fmt.Sprintf("%s %s", t.dimStyle.Render("["+m.Label+"]"), name))

	body := m.Text
	if t.renderer != nil {
		rendered, err := t.renderer.Render(m.Text)
		if err != nil {
			log.Debug().Err(err).Str("component", "terminal").Str("message_id", m.ID).Msg("markdown render failed")
		} else {
			body = strings.TrimRight(rendered, "\n")
		}
	}
	t.println(body)
}

func (t *terminalChrome) println(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintln(t.out, s)
}
