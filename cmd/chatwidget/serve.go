package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-go-golems/chatwidget/pkg/persistence/chatstore"
	"github.com/go-go-golems/chatwidget/pkg/redisstream"
	"github.com/go-go-golems/chatwidget/pkg/webchat"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveSettings struct {
	Addr           string
	DBPath         string
	MaxThreads     int
	Stream         bool
	ChunkSize      int
	ChunkDelay     time.Duration
	ThreadIDHeader string
	EchoPrefix     string
	ReplyTTL       time.Duration
	Redis          redisstream.Settings
}

func newServeCommand() *cobra.Command {
	ss := &serveSettings{Redis: redisstream.DefaultSettings()}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a development chat backend with thread history endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, ss)
		},
	}
	f := cmd.Flags()
	f.StringVar(&ss.Addr, "addr", ":8080", "HTTP listen address")
	f.StringVar(&ss.DBPath, "db", "", "SQLite file for thread history (in memory when empty)")
	f.IntVar(&ss.MaxThreads, "max-threads", 1000, "threads kept by the in-memory store")
	f.BoolVar(&ss.Stream, "stream", false, "answer with streamed responses")
	f.IntVar(&ss.ChunkSize, "chunk-size", 8, "runes per streamed chunk")
	f.DurationVar(&ss.ChunkDelay, "chunk-delay", 40*time.Millisecond, "pause between streamed chunks")
	f.StringVar(&ss.ThreadIDHeader, "thread-id-header", "x-thread-id", "response header carrying the thread id")
	f.StringVar(&ss.EchoPrefix, "echo-prefix", "You said: ", "prefix of echoed replies")
	f.DurationVar(&ss.ReplyTTL, "reply-ttl", 10*time.Minute, "how long replies are kept for idempotent retries")
	f.BoolVar(&ss.Redis.Enabled, "redis-enabled", false, "publish exchange events to Redis Streams")
	f.StringVar(&ss.Redis.Addr, "redis-addr", ss.Redis.Addr, "Redis address")
	f.StringVar(&ss.Redis.Group, "redis-group", ss.Redis.Group, "Redis consumer group")
	f.StringVar(&ss.Redis.Consumer, "redis-consumer", ss.Redis.Consumer, "Redis consumer name")
	return cmd
}

func openThreadStore(ss *serveSettings) (chatstore.ThreadStore, error) {
	if ss.DBPath == "" {
		return chatstore.NewInMemoryThreadStore(ss.MaxThreads), nil
	}
	dsn, err := chatstore.SQLiteThreadDSNForFile(ss.DBPath)
	if err != nil {
		return nil, err
	}
	st, err := chatstore.NewSQLiteThreadStore(dsn)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func runServe(ctx context.Context, ss *serveSettings) error {
	store, err := openThreadStore(ss)
	if err != nil {
		return errors.Wrap(err, "open thread store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Str("component", "serve").Msg("closing thread store failed")
		}
	}()

	bus, err := redisstream.BuildPubSub(ss.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn().Err(err).Str("component", "serve").Msg("closing event bus failed")
		}
	}()
	if ss.Redis.Enabled {
		if err := redisstream.EnsureGroupAtTail(ctx, ss.Redis.Addr, webchat.TopicExchanges, ss.Redis.Group); err != nil {
			log.Warn().Err(err).Str("component", "serve").Msg("could not prepare consumer group")
		}
	}

	srv, err := webchat.NewServer(store, webchat.EchoResponder{Prefix: ss.EchoPrefix},
		webchat.WithStreaming(ss.Stream),
		webchat.WithChunking(ss.ChunkSize, ss.ChunkDelay),
		webchat.WithThreadIDHeader(ss.ThreadIDHeader),
		webchat.WithReplyTTL(ss.ReplyTTL),
		webchat.WithPublisher(bus.Publisher),
	)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Addr:              ss.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return webchat.Run(egCtx, httpSrv)
	})
	eg.Go(func() error {
		return webchat.RunExchangeLog(egCtx, bus.Subscriber, nil)
	})
	log.Info().
		Str("component", "serve").
		Str("addr", ss.Addr).
		Bool("stream", ss.Stream).
		Bool("redis", ss.Redis.Enabled).
		Msg("chat backend ready")
	return eg.Wait()
}
