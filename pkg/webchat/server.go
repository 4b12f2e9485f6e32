package webchat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatwidget/pkg/persistence/chatstore"
)

const defaultThreadIDHeader = "x-thread-id"

// Server holds the backend state behind the HTTP handlers.
type Server struct {
	store     chatstore.ThreadStore
	responder Responder
	publisher message.Publisher
	replies   *replyCache

	stream         bool
	chunkSize      int
	chunkDelay     time.Duration
	threadIDHeader string
	newThreadID    func() string
	now            func() time.Time
}

type ServerOption func(*Server)

// WithStreaming answers chat turns as streamed text.
func WithStreaming(on bool) ServerOption {
	return func(s *Server) { s.stream = on }
}

// WithChunking sets the streamed chunk size in runes and the pause between
// chunks.
func WithChunking(size int, delay time.Duration) ServerOption {
	return func(s *Server) {
		if size > 0 {
			s.chunkSize = size
		}
		s.chunkDelay = delay
	}
}

func WithPublisher(pub message.Publisher) ServerOption {
	return func(s *Server) { s.publisher = pub }
}

func WithThreadIDHeader(name string) ServerOption {
	return func(s *Server) {
		if strings.TrimSpace(name) != "" {
			s.threadIDHeader = name
		}
	}
}

// WithReplyTTL sets how long replies are kept for idempotent retries.
func WithReplyTTL(ttl time.Duration) ServerOption {
	return func(s *Server) { s.replies = newReplyCache(ttl) }
}

func WithThreadIDSource(newID func() string) ServerOption {
	return func(s *Server) { s.newThreadID = newID }
}

func NewServer(store chatstore.ThreadStore, responder Responder, opts ...ServerOption) (*Server, error) {
	if store == nil {
		return nil, errors.New("webchat: thread store is nil")
	}
	if responder == nil {
		responder = EchoResponder{}
	}
	s := &Server{
		store:          store,
		responder:      responder,
		replies:        newReplyCache(0),
		chunkSize:      8,
		threadIDHeader: defaultThreadIDHeader,
		newThreadID:    func() string { return "thread_" + uuid.NewString() },
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the routes of the backend.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/history/update", s.handleHistoryUpdate)
	mux.HandleFunc("/threads", s.handleThreads)
	return withCORS(mux, s.threadIDHeader)
}

// Run serves httpSrv until ctx is cancelled, then shuts it down gracefully.
func Run(ctx context.Context, httpSrv *http.Server) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	if httpSrv == nil {
		return errors.New("http server is nil")
	}
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Msg("starting chat widget backend")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}

// withCORS lets widgets embedded on other origins reach the backend and
// read the thread id header.
func withCORS(next http.Handler, exposed string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Idempotency-Key, X-Idempotency-Key")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Expose-Headers", exposed)
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
