package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostJSONSendsBody(t *testing.T) {
	var (
		got         map[string]any
		method      string
		contentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.Client()).PostJSON(context.Background(), srv.URL, map[string]string{"threadId": "t1"})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	require.Equal(t, "ok", string(b))
	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "application/json", contentType)
	require.Equal(t, map[string]any{"threadId": "t1"}, got)
}

func TestPostJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(nil).PostJSON(context.Background(), srv.URL, struct{}{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusBadGateway, se.StatusCode)
	require.Contains(t, err.Error(), "502")
}

func TestPostJSONTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(nil).PostJSON(context.Background(), url, struct{}{})
	require.Error(t, err)
}

func TestChatRequestMarshal(t *testing.T) {
	b, err := json.Marshal(ChatRequest{
		User:      map[string]any{"email": "a@b.c", "message": "overridden"},
		Message:   "hello",
		Timestamp: 1700000000000,
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, "a@b.c", got["email"])
	require.Equal(t, "hello", got["message"])
	require.Nil(t, got["threadId"])
	_, hasThread := got["threadId"]
	require.True(t, hasThread)
	require.Equal(t, float64(1700000000000), got["timestamp"])

	b, err = json.Marshal(ChatRequest{Message: "x", ThreadID: "t9"})
	require.NoError(t, err)
	require.Contains(t, string(b), `"threadId":"t9"`)
}

func TestDecodeStandard(t *testing.T) {
	reply, err := DecodeStandard(strings.NewReader(`{"message":"hi","threadId":"t1"}`))
	require.NoError(t, err)
	require.Equal(t, StandardReply{Message: "hi", ThreadID: "t1"}, reply)

	reply, err = DecodeStandard(strings.NewReader(`{"message":"","threadId":"t1"}`))
	require.NoError(t, err)
	require.Equal(t, "", reply.Message)
}

func TestDecodeStandardValidation(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
		got   string
	}{
		{"missing thread", `{"message":"hi"}`, "threadId", "undefined"},
		{"numeric thread", `{"message":"hi","threadId":5}`, "threadId", "number"},
		{"thread checked first", `{"message":3,"threadId":null}`, "threadId", "null"},
		{"object message", `{"message":{"a":1},"threadId":"t"}`, "message", "object"},
		{"missing message", `{"threadId":"t"}`, "message", "undefined"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeStandard(strings.NewReader(tc.body))
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tc.field, ve.Field)
			require.Equal(t, tc.got, ve.Got)
		})
	}
}

func TestDecodeStandardMalformed(t *testing.T) {
	_, err := DecodeStandard(strings.NewReader(`not json`))
	require.Error(t, err)

	_, err = DecodeStandard(strings.NewReader(`[1,2]`))
	require.Error(t, err)
}
