package transport

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ChatRequest is the body of a chat submission. User fields are sent first
// and are overridden by message, threadId and timestamp.
type ChatRequest struct {
	User      map[string]any
	Message   string
	ThreadID  string
	Timestamp int64
}

func (r ChatRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.User)+3)
	for k, v := range r.User {
		out[k] = v
	}
	out["message"] = r.Message
	if r.ThreadID == "" {
		out["threadId"] = nil
	} else {
		out["threadId"] = r.ThreadID
	}
	out["timestamp"] = r.Timestamp
	return json.Marshal(out)
}

// StandardReply is a validated non-streamed chat response.
type StandardReply struct {
	Message  string
	ThreadID string
}

// ValidationError reports a field of a successful response that does not
// have the expected type.
type ValidationError struct {
	Field string
	Got   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%q was of incompatible type (expected 'string', received '%s')", e.Field, e.Got)
}

// DecodeStandard parses {message, threadId}. Both fields must be strings;
// threadId is checked first.
func DecodeStandard(r io.Reader) (StandardReply, error) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return StandardReply{}, errors.Wrap(err, "decode chat response")
	}
	threadID, err := stringField(body, "threadId")
	if err != nil {
		return StandardReply{}, err
	}
	message, err := stringField(body, "message")
	if err != nil {
		return StandardReply{}, err
	}
	return StandardReply{Message: message, ThreadID: threadID}, nil
}

func stringField(body map[string]json.RawMessage, name string) (string, error) {
	raw, ok := body[name]
	if !ok {
		return "", &ValidationError{Field: name, Got: "undefined"}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", errors.Wrapf(err, "decode %s", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", &ValidationError{Field: name, Got: jsonType(v)}
	}
	return s, nil
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
