package webchat

import (
	"context"
	"strings"

	"github.com/go-go-golems/chatwidget/pkg/widget/history"
)

// Turn is one incoming chat message with its thread context.
type Turn struct {
	ThreadID    string
	Message     string
	TimestampMs int64
	User        map[string]any
	History     []history.Entry
}

// Responder produces the reply to a turn.
type Responder interface {
	Respond(ctx context.Context, turn Turn) (string, error)
}

type ResponderFunc func(ctx context.Context, turn Turn) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, turn Turn) (string, error) {
	return f(ctx, turn)
}

// EchoResponder answers with the message it received.
type EchoResponder struct {
	Prefix string
}

var _ Responder = EchoResponder{}

func (e EchoResponder) Respond(_ context.Context, turn Turn) (string, error) {
	msg := strings.TrimSpace(turn.Message)
	if msg == "" {
		return "", nil
	}
	return e.Prefix + msg, nil
}
