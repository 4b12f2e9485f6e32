// Package history mirrors the remote conversation document of a thread and
// derives the normalized, display-ordered entry list from it.
package history

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Sender is who authored a normalized entry.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderSystem Sender = "system"
)

// Entry is one normalized history message.
type Entry struct {
	Message     string `json:"message"`
	TimestampMs int64  `json:"timestamp"`
	From        Sender `json:"from"`
}

const (
	wireObject    = "thread.message"
	wireRoleUser  = "user"
	wireRoleReply = "assistant"
	wirePartText  = "text"
)

// WireEntry is the remote representation of a message.
type WireEntry struct {
	ID        string        `json:"id"`
	Object    string        `json:"object"`
	CreatedAt int64         `json:"created_at"`
	Role      string        `json:"role"`
	Content   []ContentPart `json:"content"`
}

type ContentPart struct {
	Type string    `json:"type"`
	Text TextValue `json:"text"`
}

type TextValue struct {
	Value string `json:"value"`
}

// Document is the raw thread document exchanged with the history endpoints.
// Entries are kept as raw JSON so documents written by the server survive a
// wholesale round trip untouched. The head of Value.Data is the most recently
// appended entry.
type Document struct {
	ThreadID string `json:"threadId,omitempty"`
	Value    Value  `json:"value"`
}

type Value struct {
	Data []json.RawMessage `json:"data"`
}

// MarshalJSON always emits data as an array.
func (v Value) MarshalJSON() ([]byte, error) {
	data := v.Data
	if data == nil {
		data = []json.RawMessage{}
	}
	return json.Marshal(struct {
		Data []json.RawMessage `json:"data"`
	}{Data: data})
}

// UnmarshalJSON accepts any well-formed JSON. Structural violations (a
// non-object document, a missing or non-array value.data, a non-string
// threadId) are repaired instead of failing: the affected part is dropped and
// data becomes empty.
func (d *Document) UnmarshalJSON(b []byte) error {
	if !json.Valid(b) {
		return errors.New("history document: invalid json")
	}
	*d = Document{Value: Value{Data: []json.RawMessage{}}}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(b, &top); err != nil {
		return nil
	}
	if raw, ok := top["threadId"]; ok {
		var id string
		if json.Unmarshal(raw, &id) == nil {
			d.ThreadID = id
		}
	}
	var value map[string]json.RawMessage
	if err := json.Unmarshal(top["value"], &value); err != nil {
		return nil
	}
	var data []json.RawMessage
	if err := json.Unmarshal(value["data"], &data); err != nil || data == nil {
		return nil
	}
	d.Value.Data = data
	return nil
}

// ParseDocument decodes a document, repairing structural violations.
func ParseDocument(b []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(bytes.TrimSpace(b), &d); err != nil {
		return Document{Value: Value{Data: []json.RawMessage{}}}, err
	}
	return d, nil
}

// Clone returns a copy whose Data slice can be modified independently.
func (d Document) Clone() Document {
	data := make([]json.RawMessage, len(d.Value.Data))
	copy(data, d.Value.Data)
	return Document{ThreadID: d.ThreadID, Value: Value{Data: data}}
}

// Len is the number of wire entries.
func (d Document) Len() int { return len(d.Value.Data) }

// ToWire converts a normalized entry to its wire form.
func ToWire(e Entry, id string) WireEntry {
	role := wireRoleReply
	if e.From == SenderUser {
		role = wireRoleUser
	}
	return WireEntry{
		ID:        id,
		Object:    wireObject,
		CreatedAt: e.TimestampMs / 1000,
		Role:      role,
		Content: []ContentPart{{
			Type: wirePartText,
			Text: TextValue{Value: e.Message},
		}},
	}
}
