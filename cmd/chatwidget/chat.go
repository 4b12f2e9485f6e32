package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-go-golems/chatwidget/pkg/widget"
	"github.com/go-go-golems/chatwidget/pkg/widget/config"
	"github.com/go-go-golems/chatwidget/pkg/widget/storage"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

type chatSettings struct {
	ConfigPath string
	PageURL    string
	URL        string
	Stream     bool
	Plain      bool
}

func newChatCommand() *cobra.Command {
	cs := &chatSettings{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat through the widget in the terminal",
		Long: "Boots the widget against the configured endpoints and reads messages from stdin.\n" +
			"Commands: /open, /close, /clear, /page <path>, /status, /quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, cs, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&cs.ConfigPath, "config", "", "widget YAML configuration file")
	cmd.Flags().StringVar(&cs.PageURL, "page-url", "http://localhost:8080/", "URL of the host page the widget is embedded in")
	cmd.Flags().StringVar(&cs.URL, "url", "", "chat endpoint, overrides the configuration")
	cmd.Flags().BoolVar(&cs.Stream, "stream", false, "expect streamed responses, overrides the configuration")
	cmd.Flags().BoolVar(&cs.Plain, "plain", false, "disable colors and markdown rendering")
	return cmd
}

func loadChatConfig(cs *chatSettings) (config.Config, error) {
	cfg := config.Default()
	if cs.ConfigPath != "" {
		loaded, err := config.Load(cs.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if cs.URL != "" {
		cfg.URL = cs.URL
	}
	if cs.Stream {
		cfg.ResponseIsAStream = true
	}
	return cfg, cfg.Validate()
}

func runChat(ctx context.Context, cs *chatSettings, in io.Reader, out io.Writer) error {
	cfg, err := loadChatConfig(cs)
	if err != nil {
		return err
	}

	page, err := url.Parse(cs.PageURL)
	if err != nil {
		return errors.Wrap(err, "parse page url")
	}

	store, err := cfg.Storage.OpenStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Str("component", "chat").Msg("closing store failed")
		}
	}()

	jar, err := storage.NewJarCookies(cs.PageURL)
	if err != nil {
		return err
	}
	cookies := newStoreCookies(ctx, jar, store, cfg.Storage.Namespace)

	styled := !cs.Plain && !termenv.EnvNoColor()
	if f, ok := out.(*os.File); ok {
		styled = styled && isatty.IsTerminal(f.Fd())
	} else {
		styled = false
	}
	chrome := newTerminalChrome(out, styled)

	w, err := widget.New(cfg, widget.Deps{
		Chrome:     chrome,
		Store:      store,
		Cookies:    cookies,
		HTTPClient: &http.Client{Jar: jar.Jar()},
		PagePath:   page.Path,
	})
	if err != nil {
		return err
	}
	if err := w.Boot(ctx); err != nil {
		return err
	}
	chrome.Flush()
	if !w.IsOpen() {
		if err := w.Open(ctx); err != nil {
			return err
		}
		chrome.Flush()
	}

	ui := &input.UI{Writer: out, Reader: in}
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := ui.Ask(">", &input.Options{
			Required:  true,
			Loop:      true,
			HideOrder: true,
			ValidateFunc: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("message must not be blank")
				}
				return nil
			},
		})
		if err != nil {
			if errors.Is(err, input.ErrInterrupted) || errors.Is(err, io.EOF) {
				return nil
			}
			log.Debug().Err(err).Str("component", "chat").Msg("input closed")
			return nil
		}
		quit, err := handleChatLine(ctx, w, chrome, strings.TrimSpace(line), out)
		chrome.Flush()
		if err != nil {
			log.Debug().Err(err).Str("component", "chat").Msg("submit failed")
		}
		if quit {
			return nil
		}
	}
}

// handleChatLine runs one command or submits one message. It reports
// whether the session should end.
func handleChatLine(ctx context.Context, w *widget.Widget, chrome *terminalChrome, line string, out io.Writer) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		if !w.IsOpen() {
			if err := w.ActivateLauncher(ctx); err != nil {
				return false, err
			}
			chrome.Flush()
		}
		return false, w.Submit(ctx, line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/open":
		return false, w.ActivateLauncher(ctx)
	case "/close":
		w.Close(ctx)
	case "/clear":
		w.ClearConversation(ctx)
	case "/page":
		if len(fields) < 2 {
			_, _ = fmt.Fprintln(out, "usage: /page <path>")
			return false, nil
		}
		w.Navigate(fields[1])
	case "/status":
		snap := w.Session()
		vis := w.Visibility()
		_, _ = fmt.Fprintf(out, "thread=%q open=%t active=%t pinned=%t launcher=%t entries=%d\n",
			snap.ThreadID, w.IsOpen(), snap.HasActiveChat, snap.PinnedOpen, vis.LauncherVisible, len(w.History()))
	default:
		_, _ = fmt.Fprintf(out, "unknown command %s\n", fields[0])
	}
	return false, nil
}

// storeCookies mirrors the thread cookie into the widget store so it
// survives restarts of the terminal client. The jar sends it with requests.
type storeCookies struct {
	ctx       context.Context
	jar       *storage.JarCookies
	store     *storage.Soft
	namespace string
}

var _ storage.Cookies = &storeCookies{}

func newStoreCookies(ctx context.Context, jar *storage.JarCookies, store storage.Store, namespace string) *storeCookies {
	return &storeCookies{ctx: ctx, jar: jar, store: storage.NewSoft(store), namespace: namespace}
}

func (c *storeCookies) key(name string) string {
	return storage.Key(c.namespace, "cookie:"+name)
}

func (c *storeCookies) Get(name string) (string, bool) {
	if v, ok := c.jar.Get(name); ok {
		return v, true
	}
	v, ok := c.store.Get(c.ctx, c.key(name))
	if ok && v != "" {
		c.jar.Set(name, v)
		return v, true
	}
	return "", false
}

func (c *storeCookies) Set(name string, value string) {
	if value == "" {
		return
	}
	c.jar.Set(name, value)
	c.store.Set(c.ctx, c.key(name), value)
}

func (c *storeCookies) Delete(name string) {
	c.jar.Delete(name)
	c.store.Remove(c.ctx, c.key(name))
}
