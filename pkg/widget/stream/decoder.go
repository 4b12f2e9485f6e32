// Package stream decodes the widget's streamed chat response body.
//
// The body is UTF-8 text made of the reply message, optionally followed by
// a single 0x1F byte and the thread id:
//
//	Hello there, how can I help?\x1fthread_abc123
//
// Detection is per chunk. The separator is a single byte, so it cannot be
// split between chunks; multi-byte characters can, and the decoder carries
// their leading bytes over to the next chunk.
package stream

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Separator splits the message text from the trailing thread id.
const Separator byte = 0x1F

// State is the parser position relative to the separator.
type State int

const (
	BeforeSeparator State = iota
	AfterSeparator
)

func (s State) String() string {
	if s == AfterSeparator {
		return "after-separator"
	}
	return "before-separator"
}

// Result is the outcome of decoding one response body.
type Result struct {
	Message       string
	ThreadID      string
	SeparatorSeen bool
}

// Decoder holds the parse state of one response. It is not safe for
// concurrent use and must not be reused across responses.
type Decoder struct {
	state    State
	message  strings.Builder
	threadID strings.Builder
	pending  []byte
	utf8     *encoding.Decoder
	onUpdate func(message string)
	chunks   int
	finished bool
}

// NewDecoder returns a decoder that calls onUpdate once per chunk with the
// message text accumulated so far. onUpdate may be nil.
func NewDecoder(onUpdate func(message string)) *Decoder {
	return &Decoder{
		utf8:     unicode.UTF8.NewDecoder(),
		onUpdate: onUpdate,
	}
}

// State returns the current parser state.
func (d *Decoder) State() State { return d.state }

// Chunks returns how many chunks were fed.
func (d *Decoder) Chunks() int { return d.chunks }

// Feed consumes one chunk.
func (d *Decoder) Feed(chunk []byte) {
	if d.finished {
		return
	}
	d.chunks++
	d.consume(d.decode(chunk, false))
	if d.onUpdate != nil {
		d.onUpdate(d.message.String())
	}
}

func (d *Decoder) consume(text string) {
	if text == "" {
		return
	}
	if d.state == AfterSeparator {
		d.threadID.WriteString(text)
		return
	}
	before, after, found := strings.Cut(text, string(Separator))
	d.message.WriteString(before)
	if found {
		d.threadID.WriteString(after)
		d.state = AfterSeparator
	}
}

// decode turns raw bytes into text, holding back an incomplete trailing
// sequence unless atEOF is set. Ill-formed bytes become U+FFFD.
func (d *Decoder) decode(chunk []byte, atEOF bool) string {
	src := append(d.pending, chunk...)
	d.pending = nil
	if len(src) == 0 {
		return ""
	}

	var out strings.Builder
	dst := make([]byte, 3*len(src)+4)
	for {
		nDst, nSrc, err := d.utf8.Transform(dst, src, atEOF)
		out.Write(dst[:nDst])
		src = src[nSrc:]
		switch {
		case err == transform.ErrShortDst:
			if nDst == 0 && nSrc == 0 {
				dst = make([]byte, 2*len(dst))
			}
		case err == transform.ErrShortSrc:
			d.pending = append([]byte(nil), src...)
			return out.String()
		default:
			return out.String()
		}
	}
}

// Finish signals end of stream and returns the accumulated result. Further
// calls to Feed are ignored.
func (d *Decoder) Finish() Result {
	if !d.finished {
		d.consume(d.decode(nil, true))
		d.finished = true
	}
	return Result{
		Message:       d.message.String(),
		ThreadID:      d.threadID.String(),
		SeparatorSeen: d.state == AfterSeparator,
	}
}

// Decode reads r until EOF, feeding every successful read as one chunk.
func (d *Decoder) Decode(ctx context.Context, r io.Reader) (Result, error) {
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			d.Feed(buf[:n])
		}
		if err == io.EOF {
			return d.Finish(), nil
		}
		if err != nil {
			return Result{}, errors.Wrap(err, "read stream chunk")
		}
	}
}

// ApplyFallback substitutes fallback for an empty or whitespace-only message.
func ApplyFallback(message string, fallback string) string {
	if strings.TrimSpace(message) == "" {
		return fallback
	}
	return message
}

// ResolveThreadID picks the thread id to adopt. The session's id wins, then
// the out-of-band header value, then the id carried in the payload. An empty
// result means there is no id.
func ResolveThreadID(sessionID string, headerID string, payloadID string) string {
	for _, id := range []string{sessionID, headerID, payloadID} {
		if id != "" {
			return id
		}
	}
	return ""
}
