package render

import (
	"testing"
	"time"

	"github.com/go-go-golems/chatwidget/pkg/widget/history"
	"github.com/stretchr/testify/require"
)

func TestMessageID(t *testing.T) {
	require.Equal(t, "chat-widget__message--user--1000000", MessageID(history.SenderUser, 1_000_000))
	require.Equal(t, "chat-widget__message--system--42", MessageID(history.SenderSystem, 42))
}

func TestTimeLabel(t *testing.T) {
	loc := time.FixedZone("test", 2*60*60)
	ts := time.Date(2024, 3, 1, 7, 5, 0, 0, time.UTC).UnixMilli()
	require.Equal(t, "09:05", TimeLabel(ts, loc))
}

func TestMarkdownLinkPolicy(t *testing.T) {
	md := NewMarkdown("blank")
	require.Equal(t, "_blank", md.Target())

	out, err := md.Render("see [docs](https://example.com/docs) now")
	require.NoError(t, err)
	require.Contains(t, out, `href="https://example.com/docs"`)
	require.Contains(t, out, `target="_blank"`)
	require.Contains(t, out, `rel="nofollow"`)

	require.Equal(t, "_self", NewMarkdown("").Target())
	require.Equal(t, "_top", NewMarkdown("_top").Target())
}

func TestMarkdownEscapesRawHTML(t *testing.T) {
	out, err := NewMarkdown("self").Render("**hi** <script>alert(1)</script>")
	require.NoError(t, err)
	require.Contains(t, out, "<strong>hi</strong>")
	require.NotContains(t, out, "<script>")
}

func TestTranscriptUpsertInPlace(t *testing.T) {
	tr := NewTranscript()
	require.True(t, tr.SubmitEnabled())

	tr.UpsertMessage(Message{ID: "a", Text: "one"})
	tr.UpsertMessage(Message{ID: "b", Text: "two"})
	tr.UpsertMessage(Message{ID: "a", Text: "one, edited"})

	require.Equal(t, 2, tr.MessageCount())
	msgs := tr.Messages()
	require.Equal(t, "one, edited", msgs[0].Text)
	require.Equal(t, "two", msgs[1].Text)
	require.Len(t, tr.Upserts(), 3)
	require.True(t, tr.HasMessage("b"))

	tr.ClearMessages()
	require.Equal(t, 0, tr.MessageCount())
	require.False(t, tr.HasMessage("a"))
}
