package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootSettings struct {
	LogLevel   string
	WithCaller bool
	LogJSON    bool
}

func newRootCommand() *cobra.Command {
	rs := &rootSettings{}
	root := &cobra.Command{
		Use:           "chatwidget",
		Short:         "Drive the chat widget from a terminal or serve a development backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(rs)
		},
	}
	root.PersistentFlags().StringVar(&rs.LogLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&rs.WithCaller, "with-caller", false, "include caller in log lines")
	root.PersistentFlags().BoolVar(&rs.LogJSON, "log-json", false, "emit JSON log lines even on a terminal")

	root.AddCommand(newChatCommand(), newServeCommand())
	return root
}

func setupLogging(rs *rootSettings) error {
	zerolog.SetGlobalLevel(parseZerologLevel(rs.LogLevel))
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if !rs.LogJSON && isatty.IsTerminal(os.Stderr.Fd()) {
		logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if rs.WithCaller {
		logger = logger.With().Caller().Logger()
	}
	log.Logger = logger
	return nil
}

// parseZerologLevel converts a string level into zerolog.Level with a safe default
func parseZerologLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "info":
		fallthrough
	default:
		return zerolog.InfoLevel
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
