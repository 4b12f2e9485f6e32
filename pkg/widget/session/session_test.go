package session

import (
	"context"
	"testing"

	"github.com/go-go-golems/chatwidget/pkg/widget/storage"
	"github.com/stretchr/testify/require"
)

// countingStore counts reads so lazy caching can be observed.
type countingStore struct {
	*storage.MemoryStore
	gets int
}

func (c *countingStore) Get(ctx context.Context, key string) (string, bool, error) {
	c.gets++
	return c.MemoryStore.Get(ctx, key)
}

func newState(t *testing.T, opts Options) (*State, *storage.MemoryStore, *storage.MemoryCookies) {
	t.Helper()
	mem := storage.NewMemoryStore()
	cookies := storage.NewMemoryCookies()
	return New(storage.NewSoft(mem), cookies, opts), mem, cookies
}

func TestBootReadsCookieAndFlags(t *testing.T) {
	ctx := context.Background()
	s, mem, cookies := newState(t, Options{Namespace: "w"})
	cookies.Set(storage.DefaultThreadCookie, "T1")
	require.NoError(t, mem.Set(ctx, "w:launcher-forced", storage.FlagValue))

	s.Boot(ctx)
	require.Equal(t, "T1", s.ThreadID())
	require.True(t, s.HasActiveChat())
	require.True(t, s.LauncherForced())
}

func TestBootWithoutThread(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newState(t, Options{})
	s.Boot(ctx)
	require.Equal(t, "", s.ThreadID())
	require.False(t, s.HasActiveChat())
}

func TestAdoptThreadIDIsSetOnce(t *testing.T) {
	ctx := context.Background()
	s, _, cookies := newState(t, Options{})
	s.Boot(ctx)

	require.False(t, s.AdoptThreadID("  "))
	require.True(t, s.AdoptThreadID("T1"))
	require.False(t, s.AdoptThreadID("T2"))
	require.Equal(t, "T1", s.ThreadID())

	v, ok := cookies.Get(storage.DefaultThreadCookie)
	require.True(t, ok)
	require.Equal(t, "T1", v)
}

func TestPinnedOpenIsReadOnce(t *testing.T) {
	ctx := context.Background()
	counting := &countingStore{MemoryStore: storage.NewMemoryStore()}
	require.NoError(t, counting.Set(ctx, "w:pinned-open", storage.FlagValue))
	s := New(storage.NewSoft(counting), nil, Options{Namespace: "w", PersistOpenState: true})

	require.True(t, s.PinnedOpen(ctx))
	require.True(t, s.PinnedOpen(ctx))
	require.Equal(t, 1, counting.gets)

	s.SetPinnedOpen(ctx, false)
	require.False(t, s.PinnedOpen(ctx))
	_, ok, _ := counting.MemoryStore.Get(ctx, "w:pinned-open")
	require.False(t, ok)
}

func TestPinnedOpenNotPersistedWhenDisabled(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := newState(t, Options{Namespace: "w"})
	require.NoError(t, mem.Set(ctx, "w:pinned-open", storage.FlagValue))

	require.False(t, s.PinnedOpen(ctx))
	s.SetPinnedOpen(ctx, true)
	require.True(t, s.PinnedOpen(ctx))
	require.Equal(t, 1, mem.Len())
}

func TestMarkActiveChatPersists(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := newState(t, Options{Namespace: "w"})
	require.True(t, s.MarkActiveChat(ctx))
	require.False(t, s.MarkActiveChat(ctx))

	v, ok, _ := mem.Get(ctx, "w:active-chat")
	require.True(t, ok)
	require.Equal(t, storage.FlagValue, v)

	reloaded := New(storage.NewSoft(mem), nil, Options{Namespace: "w"})
	reloaded.Boot(ctx)
	require.True(t, reloaded.HasActiveChat())
}

func TestNoteOpenedForcesLauncher(t *testing.T) {
	ctx := context.Background()

	s, _, _ := newState(t, Options{RememberVisibility: false})
	s.NoteOpened(ctx, true)
	require.False(t, s.LauncherForced())

	s, _, _ = newState(t, Options{RememberVisibility: true})
	s.NoteOpened(ctx, false)
	require.False(t, s.LauncherForced())

	s, mem, _ := newState(t, Options{Namespace: "w", RememberVisibility: true})
	s.NoteOpened(ctx, true)
	require.True(t, s.LauncherForced())
	require.True(t, storage.NewSoft(mem).Flag(ctx, "w:launcher-forced"))
}

func TestResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	s, mem, cookies := newState(t, Options{Namespace: "w", RememberVisibility: true})
	s.Boot(ctx)
	s.AdoptThreadID("T1")
	s.MarkActiveChat(ctx)
	s.NoteOpened(ctx, true)

	s.Reset(ctx)
	require.Equal(t, Snapshot{}, s.Snapshot())
	_, ok := cookies.Get(storage.DefaultThreadCookie)
	require.False(t, ok)
	require.Equal(t, 0, mem.Len())

	require.True(t, s.AdoptThreadID("T2"))
	require.Equal(t, "T2", s.ThreadID())
}

func TestSessionSurvivesDisabledStorage(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewSoft(storage.Disabled{}), nil, Options{PersistOpenState: true, RememberVisibility: true})
	s.Boot(ctx)
	s.MarkActiveChat(ctx)
	s.SetPinnedOpen(ctx, true)
	s.NoteOpened(ctx, true)
	require.True(t, s.HasActiveChat())
	require.True(t, s.PinnedOpen(ctx))
	require.True(t, s.LauncherForced())
}
