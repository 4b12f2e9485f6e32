package webchat

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatwidget/pkg/persistence/chatstore"
	"github.com/go-go-golems/chatwidget/pkg/widget/history"
	"github.com/go-go-golems/chatwidget/pkg/widget/stream"
)

const maxBodyBytes = 1 << 20

// chatRequestBody is the widget's chat request: user fields plus message,
// threadId and timestamp.
type chatRequestBody struct {
	Message     string
	ThreadID    string
	TimestampMs int64
	User        map[string]any
}

func decodeChatRequest(r io.Reader) (chatRequestBody, error) {
	var raw map[string]any
	if err := json.NewDecoder(io.LimitReader(r, maxBodyBytes)).Decode(&raw); err != nil {
		return chatRequestBody{}, errors.Wrap(err, "decode chat request")
	}
	var out chatRequestBody
	msg, ok := raw["message"].(string)
	if !ok {
		return chatRequestBody{}, errors.New("message must be a string")
	}
	out.Message = msg
	switch v := raw["threadId"].(type) {
	case nil:
	case string:
		out.ThreadID = strings.TrimSpace(v)
	default:
		return chatRequestBody{}, errors.New("threadId must be a string or null")
	}
	if ts, ok := raw["timestamp"].(float64); ok {
		out.TimestampMs = int64(ts)
	}
	delete(raw, "message")
	delete(raw, "threadId")
	delete(raw, "timestamp")
	out.User = raw
	return out, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := decodeChatRequest(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := idempotencyKeyFromRequest(r)
	if cached, ok := s.replies.get(key); ok {
		log.Debug().Str("component", "webchat").Str("idempotency_key", key).Msg("replaying cached reply")
		s.writeReply(w, cached.ThreadID, cached.Message)
		return
	}

	threadID := body.ThreadID
	newThread := threadID == ""
	var past []history.Entry
	if newThread {
		threadID = s.newThreadID()
	} else {
		doc, ok, err := s.store.Get(r.Context(), threadID)
		if err != nil {
			log.Warn().Err(err).Str("component", "webchat").Str("thread_id", threadID).Msg("could not load thread for reply")
		} else if ok {
			past = history.Normalize(doc, s.now())
		}
	}

	reply, err := s.responder.Respond(r.Context(), Turn{
		ThreadID:    threadID,
		Message:     body.Message,
		TimestampMs: body.TimestampMs,
		User:        body.User,
		History:     past,
	})
	if err != nil {
		log.Error().Err(err).Str("component", "webchat").Str("thread_id", threadID).Msg("responder failed")
		http.Error(w, "responder failed", http.StatusBadGateway)
		return
	}

	s.replies.put(key, cachedReply{ThreadID: threadID, Message: reply})
	s.writeReply(w, threadID, reply)

	if err := publishExchange(s.publisher, ExchangeEvent{
		ThreadID:       threadID,
		IdempotencyKey: key,
		UserMessage:    body.Message,
		Reply:          reply,
		Streamed:       s.stream,
		NewThread:      newThread,
		AtMs:           s.now().UnixMilli(),
	}); err != nil {
		log.Warn().Err(err).Str("component", "webchat").Str("thread_id", threadID).Msg("exchange event not published")
	}
}

func (s *Server) writeReply(w http.ResponseWriter, threadID string, reply string) {
	if !s.stream {
		writeJSON(w, http.StatusOK, map[string]string{"message": reply, "threadId": threadID})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(s.threadIDHeader, threadID)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for _, chunk := range chunkRunes(reply, s.chunkSize) {
		if _, err := io.WriteString(w, chunk); err != nil {
			log.Debug().Err(err).Str("component", "webchat").Msg("client went away mid-stream")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if s.chunkDelay > 0 {
			time.Sleep(s.chunkDelay)
		}
	}
	_, _ = w.Write(append([]byte{stream.Separator}, threadID...))
	if flusher != nil {
		flusher.Flush()
	}
}

// chunkRunes splits s into pieces of at most size runes.
func chunkRunes(s string, size int) []string {
	if size <= 0 {
		size = 1
	}
	var out []string
	runes := []rune(s)
	for len(runes) > 0 {
		n := min(size, len(runes))
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ThreadID string `json:"threadId"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		http.Error(w, "missing threadId", http.StatusBadRequest)
		return
	}
	doc, ok, err := s.store.Get(r.Context(), threadID)
	if err != nil {
		log.Error().Err(err).Str("component", "webchat").Str("thread_id", threadID).Msg("history read failed")
		http.Error(w, "history read failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		doc = history.Document{ThreadID: threadID, Value: history.Value{Data: []json.RawMessage{}}}
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleHistoryUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	doc, err := history.ParseDocument(raw)
	if err != nil {
		http.Error(w, "invalid document", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(doc.ThreadID) == "" {
		http.Error(w, "missing threadId", http.StatusBadRequest)
		return
	}
	if err := s.store.Put(r.Context(), doc); err != nil {
		log.Error().Err(err).Str("component", "webchat").Str("thread_id", doc.ThreadID).Msg("history write failed")
		http.Error(w, "history write failed", http.StatusInternalServerError)
		return
	}
	log.Debug().Str("component", "webchat").Str("thread_id", doc.ThreadID).Int("entries", doc.Len()).Msg("thread history updated")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	records, err := s.store.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Str("component", "webchat").Msg("thread listing failed")
		http.Error(w, "thread listing failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []chatstore.ThreadRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": records})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "webchat").Msg("response write failed")
	}
}
