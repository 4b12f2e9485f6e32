// Package session holds the per-page-load widget session: the adopted
// thread id and the three persisted flags.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/go-go-golems/chatwidget/pkg/widget/storage"
	"github.com/rs/zerolog/log"
)

const (
	keyPinnedOpen     = "pinned-open"
	keyLauncherForced = "launcher-forced"
	keyActiveChat     = "active-chat"
)

// Options configures persistence.
type Options struct {
	Namespace          string
	CookieName         string
	PersistOpenState   bool
	RememberVisibility bool
}

// State is owned by the widget controller. Methods are safe for concurrent
// use.
type State struct {
	opts    Options
	store   *storage.Soft
	cookies storage.Cookies

	mu             sync.Mutex
	threadID       string
	pinnedOpen     bool
	pinnedLoaded   bool
	hasActiveChat  bool
	launcherForced bool
}

func New(store *storage.Soft, cookies storage.Cookies, opts Options) *State {
	if opts.CookieName == "" {
		opts.CookieName = storage.DefaultThreadCookie
	}
	if cookies == nil {
		cookies = storage.NewMemoryCookies()
	}
	return &State{opts: opts, store: store, cookies: cookies}
}

func (s *State) key(name string) string {
	return storage.Key(s.opts.Namespace, name)
}

// Boot reads the thread id cookie and the persisted flags. An existing
// thread id implies an active chat.
func (s *State) Boot(ctx context.Context) {
	threadID, _ := s.cookies.Get(s.opts.CookieName)
	threadID = strings.TrimSpace(threadID)
	active := s.store.Flag(ctx, s.key(keyActiveChat))
	forced := s.store.Flag(ctx, s.key(keyLauncherForced))

	s.mu.Lock()
	s.threadID = threadID
	s.hasActiveChat = active || threadID != ""
	s.launcherForced = forced
	s.mu.Unlock()

	log.Debug().
		Str("component", "session").
		Str("thread_id", threadID).
		Bool("active_chat", active || threadID != "").
		Bool("launcher_forced", forced).
		Msg("session booted")
}

// ThreadID returns the adopted thread id, or "" when there is none.
func (s *State) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// AdoptThreadID sets the thread id if none is set yet and writes it to the
// cookie. It reports whether id was adopted. An already-set id always wins.
func (s *State) AdoptThreadID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	s.mu.Lock()
	if s.threadID != "" {
		current := s.threadID
		s.mu.Unlock()
		if current != id {
			log.Debug().Str("component", "session").Str("thread_id", current).Str("candidate", id).Msg("keeping existing thread id")
		}
		return false
	}
	s.threadID = id
	s.mu.Unlock()

	s.cookies.Set(s.opts.CookieName, id)
	log.Info().Str("component", "session").Str("thread_id", id).Msg("adopted thread id")
	return true
}

// PinnedOpen reads the preference once and caches it. It is always false
// when open state persistence is off.
func (s *State) PinnedOpen(ctx context.Context) bool {
	s.mu.Lock()
	if s.pinnedLoaded {
		v := s.pinnedOpen
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()

	v := false
	if s.opts.PersistOpenState {
		v = s.store.Flag(ctx, s.key(keyPinnedOpen))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pinnedLoaded {
		s.pinnedOpen = v
		s.pinnedLoaded = true
	}
	return s.pinnedOpen
}

// SetPinnedOpen updates the preference, persisting it when enabled.
func (s *State) SetPinnedOpen(ctx context.Context, on bool) {
	s.mu.Lock()
	s.pinnedOpen = on
	s.pinnedLoaded = true
	s.mu.Unlock()
	if s.opts.PersistOpenState {
		s.store.SetFlag(ctx, s.key(keyPinnedOpen), on)
	}
}

func (s *State) HasActiveChat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasActiveChat
}

// MarkActiveChat sets the active-chat flag. It reports whether the flag
// changed.
func (s *State) MarkActiveChat(ctx context.Context) bool {
	s.mu.Lock()
	if s.hasActiveChat {
		s.mu.Unlock()
		return false
	}
	s.hasActiveChat = true
	s.mu.Unlock()
	s.store.SetFlag(ctx, s.key(keyActiveChat), true)
	return true
}

func (s *State) LauncherForced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launcherForced
}

// NoteOpened records that the drawer opened. With a launcher present and
// visibility remembering on, the launcher becomes forced from now on.
func (s *State) NoteOpened(ctx context.Context, launcherExists bool) {
	if !launcherExists || !s.opts.RememberVisibility {
		return
	}
	s.mu.Lock()
	if s.launcherForced {
		s.mu.Unlock()
		return
	}
	s.launcherForced = true
	s.mu.Unlock()
	s.store.SetFlag(ctx, s.key(keyLauncherForced), true)
}

// Reset clears the thread id, the active-chat flag and the forced launcher,
// in memory and in storage. It backs the clear-conversation action.
func (s *State) Reset(ctx context.Context) {
	s.mu.Lock()
	s.threadID = ""
	s.hasActiveChat = false
	s.launcherForced = false
	s.mu.Unlock()

	s.cookies.Delete(s.opts.CookieName)
	s.store.SetFlag(ctx, s.key(keyActiveChat), false)
	s.store.SetFlag(ctx, s.key(keyLauncherForced), false)
}

// Snapshot is a copy of the session fields.
type Snapshot struct {
	ThreadID       string
	PinnedOpen     bool
	HasActiveChat  bool
	LauncherForced bool
}

// Snapshot returns the in-memory fields without touching storage. An
// unread pinned-open preference reports false.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ThreadID:       s.threadID,
		PinnedOpen:     s.pinnedOpen,
		HasActiveChat:  s.hasActiveChat,
		LauncherForced: s.launcherForced,
	}
}
