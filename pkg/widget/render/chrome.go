// Package render holds the collaborators the widget draws through: the
// chrome, message ids and the markdown renderer.
package render

import (
	"fmt"
	"time"

	"github.com/go-go-golems/chatwidget/pkg/widget/history"
)

// Message is one rendered chat message.
type Message struct {
	ID          string
	From        history.Sender
	Text        string
	HTML        string
	TimestampMs int64
	Label       string
}

// Chrome is the widget surface: drawer, message list, composer, launcher
// and backdrop. Implementations must be safe for concurrent use.
type Chrome interface {
	Mount(title string)
	Unmount()
	Mounted() bool

	HasMessage(id string) bool
	// UpsertMessage replaces the message with the same id in place or
	// appends it.
	UpsertMessage(m Message)
	ClearMessages()
	MessageCount() int

	ShowThinking()
	HideThinking()
	SetSubmitEnabled(enabled bool)
	ClearInput()

	SetActiveIndicator(active bool)
	SetLauncherVisible(visible bool)
	SetBackdropVisible(visible bool)

	Alert(text string)
}

// MessageID is the deterministic element id of a message.
func MessageID(from history.Sender, ts int64) string {
	return fmt.Sprintf("chat-widget__message--%s--%d", from, ts)
}

// TimeLabel formats a millisecond timestamp as HH:MM in loc (local time when
// loc is nil).
func TimeLabel(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ts).In(loc).Format("15:04")
}
