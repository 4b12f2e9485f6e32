package history

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MillisecondThreshold separates millisecond epochs from second epochs.
// Values above it are already milliseconds.
const MillisecondThreshold = 1_000_000_000_000

// NormalizeTimestamp converts a created_at value into epoch milliseconds.
// Numbers and numeric strings above MillisecondThreshold pass through,
// smaller ones are seconds. Anything else falls back to now.
func NormalizeTimestamp(raw any, now time.Time) int64 {
	var v float64
	switch t := raw.(type) {
	case float64:
		v = t
	case float32:
		v = float64(t)
	case int:
		v = float64(t)
	case int64:
		v = float64(t)
	case json.Number:
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return now.UnixMilli()
		}
		v = f
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return now.UnixMilli()
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return now.UnixMilli()
		}
		v = f
	default:
		return now.UnixMilli()
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return now.UnixMilli()
	}
	if v > MillisecondThreshold {
		return int64(v)
	}
	return int64(math.Round(v * 1000))
}

// Normalize derives the display list from a document: the first textual
// content part of every entry, user role mapped to SenderUser and everything
// else to SenderSystem, sorted ascending by timestamp. Entries without text
// are skipped.
func Normalize(doc Document, now time.Time) []Entry {
	out := make([]Entry, 0, len(doc.Value.Data))
	for _, raw := range doc.Value.Data {
		e, ok := normalizeEntry(raw, now)
		if ok {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimestampMs < out[j].TimestampMs
	})
	return out
}

func normalizeEntry(raw json.RawMessage, now time.Time) (Entry, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Entry{}, false
	}
	text, ok := firstText(fields["content"])
	if !ok {
		return Entry{}, false
	}

	from := SenderSystem
	var role string
	if json.Unmarshal(fields["role"], &role) == nil && role == wireRoleUser {
		from = SenderUser
	}

	var createdAt any
	if c, ok := fields["created_at"]; ok {
		dec := json.NewDecoder(bytes.NewReader(c))
		dec.UseNumber()
		if dec.Decode(&createdAt) != nil {
			createdAt = nil
		}
	}

	return Entry{
		Message:     text,
		TimestampMs: NormalizeTimestamp(createdAt, now),
		From:        from,
	}, true
}

func firstText(content json.RawMessage) (string, bool) {
	var parts []json.RawMessage
	if err := json.Unmarshal(content, &parts); err != nil {
		return "", false
	}
	for _, p := range parts {
		var part struct {
			Text *struct {
				Value json.RawMessage `json:"value"`
			} `json:"text"`
		}
		if json.Unmarshal(p, &part) != nil || part.Text == nil {
			continue
		}
		v := bytes.TrimSpace(part.Text.Value)
		var s string
		if len(v) > 0 && v[0] == '"' && json.Unmarshal(v, &s) == nil {
			return s, true
		}
	}
	return "", false
}
