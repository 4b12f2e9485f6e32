// Package widget is the chat widget controller. It boots the session,
// preloads thread history, opens and closes the drawer, submits messages
// and drives the visibility policy. Rendering goes through a render.Chrome
// supplied by the host.
package widget

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-go-golems/chatwidget/pkg/widget/config"
	"github.com/go-go-golems/chatwidget/pkg/widget/history"
	"github.com/go-go-golems/chatwidget/pkg/widget/render"
	"github.com/go-go-golems/chatwidget/pkg/widget/session"
	"github.com/go-go-golems/chatwidget/pkg/widget/storage"
	"github.com/go-go-golems/chatwidget/pkg/widget/stream"
	"github.com/go-go-golems/chatwidget/pkg/widget/transport"
	"github.com/go-go-golems/chatwidget/pkg/widget/visibility"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators of a widget. Only Chrome is required.
type Deps struct {
	Chrome render.Chrome
	// Host resolves hide targets on the host page.
	Host visibility.Host
	// Store backs the persisted flags. Nil disables persistence softly.
	Store storage.Store
	// Cookies holds the thread id cookie. When it is a *storage.JarCookies
	// and HTTPClient is nil, the jar is installed on the default client.
	Cookies    storage.Cookies
	HTTPClient *http.Client
	Now        func() time.Time
	// Location formats message time labels. Defaults to time.Local.
	Location *time.Location
	// PagePath is the host page path the launcher rules match against.
	PagePath string
}

type Widget struct {
	cfg      config.Config
	chrome   render.Chrome
	session  *session.State
	client   *transport.Client
	cache    *history.Cache
	preload  *history.Preloader
	hide     *visibility.HideTracker
	rules    visibility.Rules
	markdown *render.Markdown
	now      func() time.Time
	loc      *time.Location

	inFlight atomic.Bool

	mu       sync.Mutex
	pagePath string
	open     bool
	injected bool
	vis      visibility.Output
}

func New(cfg config.Config, deps Deps) (*Widget, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Chrome == nil {
		return nil, errors.New("widget: chrome is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
		if jc, ok := deps.Cookies.(*storage.JarCookies); ok {
			httpClient.Jar = jc.Jar()
		}
	}

	st := session.New(storage.NewSoft(deps.Store), deps.Cookies, session.Options{
		Namespace:          cfg.Storage.Namespace,
		CookieName:         cfg.CookieName,
		PersistOpenState:   cfg.PersistOpenState,
		RememberVisibility: cfg.Launcher.RememberVisibility,
	})
	client := transport.NewClient(httpClient)
	cache := history.NewCache(client, st, history.WithUpdateURL(cfg.ThreadUpdateURL), history.WithClock(now))

	w := &Widget{
		cfg:      cfg,
		chrome:   deps.Chrome,
		session:  st,
		client:   client,
		cache:    cache,
		hide:     visibility.NewHideTracker(deps.Host, visibility.Targets(cfg.HideTargets.IDs, cfg.HideTargets.Classes)),
		rules:    visibility.ParseRules(cfg.Launcher.RestrictToPaths),
		markdown: render.NewMarkdown(cfg.LinkTarget),
		now:      now,
		loc:      deps.Location,
		pagePath: deps.PagePath,
	}
	if cfg.ThreadHistoryURL != "" {
		w.preload = history.NewPreloader(cache, cfg.ThreadHistoryURL)
	}
	return w, nil
}

// Boot reads the session, starts the history preload when a thread is known
// and opens the drawer when configured to or when it was pinned open.
func (w *Widget) Boot(ctx context.Context) error {
	w.session.Boot(ctx)
	w.chrome.SetActiveIndicator(w.session.HasActiveChat())

	if id := w.session.ThreadID(); id != "" && w.preload != nil {
		w.preload.Start(id)
	}
	w.applyVisibility()

	autoOpen := w.cfg.OpenOnLoad || (w.cfg.PersistOpenState && w.session.PinnedOpen(ctx))
	if !autoOpen {
		return nil
	}
	w.awaitPreload(ctx)
	return w.Open(ctx)
}

// awaitPreload joins the preload of the current thread. Failures leave the
// history empty.
func (w *Widget) awaitPreload(ctx context.Context) {
	id := w.session.ThreadID()
	if w.preload == nil || id == "" || !w.preload.Started(id) {
		return
	}
	if err := w.preload.Wait(ctx, id); err != nil {
		log.Warn().Err(err).Str("component", "widget").Str("thread_id", id).Msg("history preload failed, opening with empty history")
	}
}

// Open mounts the chrome, injects the preloaded history once and seeds the
// greeting when nothing is rendered.
func (w *Widget) Open(ctx context.Context) error {
	w.mu.Lock()
	if w.open {
		w.mu.Unlock()
		return nil
	}
	w.open = true
	w.mu.Unlock()

	w.chrome.Mount(w.cfg.WidgetTitle)
	w.injectHistory(ctx)
	if w.cfg.GreetingMessage != "" && w.chrome.MessageCount() == 0 {
		w.renderMessage(w.cfg.GreetingMessage, w.now().UnixMilli(), history.SenderSystem)
	}

	w.session.NoteOpened(ctx, w.cfg.Launcher.Enabled)
	w.applyVisibility()
	log.Debug().Str("component", "widget").Str("thread_id", w.session.ThreadID()).Msg("opened")
	return nil
}

func (w *Widget) injectHistory(ctx context.Context) {
	w.mu.Lock()
	if w.injected {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	id := w.session.ThreadID()
	if w.preload == nil || id == "" {
		return
	}
	w.awaitPreload(ctx)

	w.mu.Lock()
	if w.injected {
		w.mu.Unlock()
		return
	}
	w.injected = true
	w.mu.Unlock()

	for _, e := range w.cache.Entries() {
		if w.chrome.HasMessage(render.MessageID(e.From, e.TimestampMs)) {
			continue
		}
		w.renderMessage(e.Message, e.TimestampMs, e.From)
	}
}

// Close collapses the drawer. The pinned-open preference is cleared.
func (w *Widget) Close(ctx context.Context) {
	w.mu.Lock()
	if !w.open {
		w.mu.Unlock()
		return
	}
	w.open = false
	w.mu.Unlock()

	w.chrome.Unmount()
	w.session.SetPinnedOpen(ctx, false)
	w.applyVisibility()
}

// ActivateLauncher pins the drawer open and opens it.
func (w *Widget) ActivateLauncher(ctx context.Context) error {
	w.session.SetPinnedOpen(ctx, true)
	return w.Open(ctx)
}

// Navigate updates the host page path and recomputes visibility.
func (w *Widget) Navigate(path string) {
	w.mu.Lock()
	w.pagePath = path
	w.mu.Unlock()
	w.applyVisibility()
}

func (w *Widget) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Visibility returns the last computed visibility.
func (w *Widget) Visibility() visibility.Output {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.vis
}

func (w *Widget) Session() session.Snapshot { return w.session.Snapshot() }

// History returns the normalized thread history.
func (w *Widget) History() []history.Entry { return w.cache.Entries() }

// Document returns the raw thread document mirror.
func (w *Widget) Document() history.Document { return w.cache.Document() }

func (w *Widget) applyVisibility() {
	w.mu.Lock()
	in := visibility.Input{
		LauncherEnabled:     w.cfg.Launcher.Enabled,
		LauncherForced:      w.session.LauncherForced(),
		Rules:               w.rules,
		Path:                w.pagePath,
		DrawerOpen:          w.open,
		CloseOnOutsideClick: w.cfg.CloseOnOutsideClick,
	}
	out := visibility.Compute(in)
	w.vis = out
	w.mu.Unlock()

	w.chrome.SetLauncherVisible(out.LauncherVisible)
	w.chrome.SetBackdropVisible(out.BackdropVisible)
	w.hide.Apply(out.HideTargets)
}

// Submit sends text to the chat endpoint and renders the reply. Only one
// submission runs at a time; others get ErrSubmitInFlight without a
// request being issued. Failures are alerted unless alerts are disabled and
// returned; the user's message stays rendered.
func (w *Widget) Submit(ctx context.Context, text string) error {
	if !w.inFlight.CompareAndSwap(false, true) {
		return ErrSubmitInFlight
	}
	defer w.inFlight.Store(false)

	if strings.TrimSpace(w.cfg.URL) == "" {
		log.Error().Str("component", "widget").Msg("no chat url provided")
		w.alert("Could not send chat message: No URL provided")
		return ErrNoURL
	}

	w.chrome.SetSubmitEnabled(false)
	defer w.chrome.SetSubmitEnabled(true)

	ts := w.now().UnixMilli()
	w.renderMessage(text, ts, history.SenderUser)
	w.session.MarkActiveChat(ctx)
	w.chrome.SetActiveIndicator(true)
	w.cache.Append(ctx, history.Entry{Message: text, TimestampMs: ts, From: history.SenderUser}, false)
	w.chrome.ClearInput()
	w.chrome.ShowThinking()

	req := transport.ChatRequest{
		User:      w.cfg.User,
		Message:   text,
		ThreadID:  w.session.ThreadID(),
		Timestamp: ts,
	}
	resp, err := w.client.PostJSON(ctx, w.cfg.URL, req)
	w.chrome.HideThinking()
	if err != nil {
		log.Error().Err(err).Str("component", "widget").Msg("chat request failed")
		w.alert("Could not send message: " + failureText(err))
		return errors.Wrap(err, "send chat message")
	}
	defer func() { _ = resp.Body.Close() }()

	if w.cfg.ResponseIsAStream {
		return w.handleStreamed(ctx, resp)
	}
	return w.handleStandard(ctx, resp)
}

func (w *Widget) handleStandard(ctx context.Context, resp *http.Response) error {
	reply, err := transport.DecodeStandard(resp.Body)
	if err != nil {
		log.Error().Err(err).Str("component", "widget").Msg("invalid chat response")
		var ve *transport.ValidationError
		if errors.As(err, &ve) {
			w.alert(fmt.Sprintf("Received an OK response but %s. Please make sure the API response is configured correctly.", ve.Error()))
		} else {
			w.alert("Could not send message: " + err.Error())
		}
		return err
	}

	ts := w.now().UnixMilli()
	w.renderMessage(reply.Message, ts, history.SenderSystem)
	w.session.AdoptThreadID(reply.ThreadID)
	w.cache.Append(ctx, history.Entry{Message: reply.Message, TimestampMs: ts, From: history.SenderSystem}, true)
	return nil
}

func (w *Widget) handleStreamed(ctx context.Context, resp *http.Response) error {
	headerID := strings.TrimSpace(resp.Header.Get(w.cfg.ThreadIDHeader))
	ts := w.now().UnixMilli()
	dec := stream.NewDecoder(func(message string) {
		w.renderMessage(message, ts, history.SenderSystem)
	})
	res, err := dec.Decode(ctx, resp.Body)
	if err != nil {
		log.Error().Err(err).Str("component", "widget").Int("chunks", dec.Chunks()).Msg("streamed response failed")
		w.alert("Could not send message: " + err.Error())
		return err
	}

	message := stream.ApplyFallback(res.Message, w.cfg.FallbackMessage)
	if message != res.Message || dec.Chunks() == 0 {
		w.renderMessage(message, ts, history.SenderSystem)
	}
	w.session.AdoptThreadID(stream.ResolveThreadID(w.session.ThreadID(), headerID, res.ThreadID))
	w.cache.Append(ctx, history.Entry{Message: message, TimestampMs: ts, From: history.SenderSystem}, true)
	return nil
}

// ClearConversation forgets the thread: session, history, preload and the
// rendered list. The greeting is seeded again when configured.
func (w *Widget) ClearConversation(ctx context.Context) {
	old := w.session.ThreadID()
	w.session.Reset(ctx)
	w.cache.Clear()
	if w.preload != nil && old != "" {
		w.preload.Forget(old)
	}
	w.chrome.ClearMessages()
	w.chrome.SetActiveIndicator(false)

	w.mu.Lock()
	w.injected = false
	w.mu.Unlock()

	if w.cfg.GreetingMessage != "" {
		w.renderMessage(w.cfg.GreetingMessage, w.now().UnixMilli(), history.SenderSystem)
	}
	w.applyVisibility()
	log.Info().Str("component", "widget").Str("thread_id", old).Msg("conversation cleared")
}

func (w *Widget) renderMessage(text string, ts int64, from history.Sender) {
	body, err := w.markdown.Render(text)
	if err != nil {
		log.Warn().Err(err).Str("component", "widget").Msg("markdown rendering failed, showing plain text")
		body = "<p>" + html.EscapeString(text) + "</p>"
	}
	w.chrome.UpsertMessage(render.Message{
		ID:          render.MessageID(from, ts),
		From:        from,
		Text:        text,
		HTML:        body,
		TimestampMs: ts,
		Label:       render.TimeLabel(ts, w.loc),
	})
}

func (w *Widget) alert(text string) {
	if w.cfg.DisableErrorAlert {
		return
	}
	w.chrome.Alert(text)
}

// failureText is the user-facing reason of a failed request.
func failureText(err error) string {
	var se *transport.StatusError
	if errors.As(err, &se) {
		if t := http.StatusText(se.StatusCode); t != "" {
			return t
		}
		return se.Status
	}
	return errors.Cause(err).Error()
}
