package history

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-go-golems/chatwidget/pkg/widget/transport"
	"github.com/stretchr/testify/require"
)

type fixedThread struct {
	mu sync.Mutex
	id string
}

func (f *fixedThread) ThreadID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fixedThread) set(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = id
}

var testNow = time.UnixMilli(1_700_000_000_123)

func clock() time.Time { return testNow }

type recordingServer struct {
	*httptest.Server
	fetches atomic.Int32
	updates atomic.Int32

	mu       sync.Mutex
	lastBody []byte
	fetchFn  func(w http.ResponseWriter, threadID string)
	updateFn func(w http.ResponseWriter)
}

func newRecordingServer(t *testing.T) *recordingServer {
	rs := &recordingServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		rs.fetches.Add(1)
		var req struct {
			ThreadID string `json:"threadId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if rs.fetchFn != nil {
			rs.fetchFn(w, req.ThreadID)
			return
		}
		_, _ = w.Write([]byte(`{"threadId":"` + req.ThreadID + `","value":{"data":[]}}`))
	})
	mux.HandleFunc("/history/update", func(w http.ResponseWriter, r *http.Request) {
		rs.updates.Add(1)
		b, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		rs.lastBody = b
		rs.mu.Unlock()
		if rs.updateFn != nil {
			rs.updateFn(w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) body() []byte {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.lastBody
}

const twoEntries = `{
  "threadId": "T1",
  "value": {"data": [
    {"id":"m2","object":"thread.message","created_at":2000,"role":"assistant","content":[{"type":"text","text":{"value":"second"}}]},
    {"id":"m1","object":"thread.message","created_at":1000,"role":"user","content":[{"type":"text","text":{"value":"first"}}]}
  ]}
}`

func TestNormalizeTimestamp(t *testing.T) {
	require.Equal(t, int64(1_000_000), NormalizeTimestamp(float64(1000), testNow))
	require.Equal(t, int64(1_700_000_000_000), NormalizeTimestamp(float64(1_700_000_000), testNow))
	require.Equal(t, int64(1_700_000_000_000), NormalizeTimestamp(float64(1_700_000_000_000), testNow))
	require.Equal(t, int64(1500), NormalizeTimestamp(json.Number("1.5"), testNow))
	require.Equal(t, int64(42_000), NormalizeTimestamp("42", testNow))
	require.Equal(t, int64(42_000), NormalizeTimestamp(42, testNow))
	require.Equal(t, testNow.UnixMilli(), NormalizeTimestamp("yesterday", testNow))
	require.Equal(t, testNow.UnixMilli(), NormalizeTimestamp("", testNow))
	require.Equal(t, testNow.UnixMilli(), NormalizeTimestamp(nil, testNow))
	require.Equal(t, testNow.UnixMilli(), NormalizeTimestamp(true, testNow))
}

func TestNormalizeTimestampIdempotent(t *testing.T) {
	for _, secs := range []int64{1, 1000, 1_000_000_000, 1_700_000_000} {
		ms := NormalizeTimestamp(secs, testNow)
		require.Equal(t, secs*1000, ms, "secs=%d", secs)
		if ms > MillisecondThreshold {
			require.Equal(t, ms, NormalizeTimestamp(ms, testNow), "secs=%d", secs)
		}
	}
}

func TestParseDocumentRepairsStructure(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`[]`,
		`"text"`,
		`{"value":null}`,
		`{"value":{"data":null}}`,
		`{"value":{"data":{"0":1}}}`,
		`{"value":"x","threadId":7}`,
	} {
		doc, err := ParseDocument([]byte(body))
		require.NoError(t, err, body)
		require.NotNil(t, doc.Value.Data, body)
		require.Equal(t, 0, doc.Len(), body)
		require.Equal(t, "", doc.ThreadID, body)

		out, err := json.Marshal(doc)
		require.NoError(t, err)
		require.JSONEq(t, `{"value":{"data":[]}}`, string(out))
	}

	_, err := ParseDocument([]byte(`{"value":`))
	require.Error(t, err)
}

func TestNormalize(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"value":{"data":[
		{"created_at":5,"role":"assistant","content":[{"type":"image"},{"type":"text","text":{"value":"reply"}}]},
		{"created_at":"3","role":"user","content":[{"type":"text","text":{"value":"question"}}]},
		{"created_at":4,"role":"tool","content":[{"type":"text","text":{"value":"tool"}}]},
		{"created_at":1,"role":"user","content":[{"type":"text","text":{"value":12}}]},
		{"created_at":1,"role":"user","content":"flat"},
		{"created_at":1,"role":"user"},
		null,
		7
	]}}`))
	require.NoError(t, err)
	require.Equal(t, 8, doc.Len())

	entries := Normalize(doc, testNow)
	require.Equal(t, []Entry{
		{Message: "question", TimestampMs: 3000, From: SenderUser},
		{Message: "tool", TimestampMs: 4000, From: SenderSystem},
		{Message: "reply", TimestampMs: 5000, From: SenderSystem},
	}, entries)
}

func TestToWire(t *testing.T) {
	w := ToWire(Entry{Message: "hi", TimestampMs: 1_700_000_000_999, From: SenderUser}, "local-1")
	require.Equal(t, WireEntry{
		ID:        "local-1",
		Object:    "thread.message",
		CreatedAt: 1_700_000_000,
		Role:      "user",
		Content:   []ContentPart{{Type: "text", Text: TextValue{Value: "hi"}}},
	}, w)
	require.Equal(t, "assistant", ToWire(Entry{From: SenderSystem}, "x").Role)
}

func TestCacheLoadSeedsAscendingEntries(t *testing.T) {
	srv := newRecordingServer(t)
	srv.fetchFn = func(w http.ResponseWriter, _ string) { _, _ = w.Write([]byte(twoEntries)) }

	cache := NewCache(transport.NewClient(srv.Client()), &fixedThread{id: "T1"}, WithClock(clock))
	require.NoError(t, cache.Load(context.Background(), srv.URL+"/history", "T1"))

	require.Equal(t, []Entry{
		{Message: "first", TimestampMs: 1_000_000, From: SenderUser},
		{Message: "second", TimestampMs: 2_000_000, From: SenderSystem},
	}, cache.Entries())
	doc := cache.Document()
	require.Equal(t, "T1", doc.ThreadID)
	require.Equal(t, 2, doc.Len())
	require.Equal(t, int32(1), srv.fetches.Load())
}

func TestCacheLoadFailureClearsMirror(t *testing.T) {
	srv := newRecordingServer(t)
	srv.fetchFn = func(w http.ResponseWriter, _ string) { _, _ = w.Write([]byte(twoEntries)) }
	threads := &fixedThread{id: "T1"}
	cache := NewCache(transport.NewClient(srv.Client()), threads, WithClock(clock))
	require.NoError(t, cache.Load(context.Background(), srv.URL+"/history", "T1"))

	srv.fetchFn = func(w http.ResponseWriter, _ string) { http.Error(w, "boom", http.StatusInternalServerError) }
	err := cache.Load(context.Background(), srv.URL+"/history", "T1")
	var se *transport.StatusError
	require.ErrorAs(t, err, &se)
	require.Empty(t, cache.Entries())
	require.Equal(t, 0, cache.Document().Len())
	require.Equal(t, int32(2), srv.fetches.Load())
}

func TestCacheLoadDiscardsStaleThread(t *testing.T) {
	srv := newRecordingServer(t)
	threads := &fixedThread{id: "T1"}
	srv.fetchFn = func(w http.ResponseWriter, _ string) {
		threads.set("")
		_, _ = w.Write([]byte(twoEntries))
	}
	cache := NewCache(transport.NewClient(srv.Client()), threads, WithClock(clock))
	cache.Append(context.Background(), Entry{Message: "local", TimestampMs: 1, From: SenderUser}, false)

	err := cache.Load(context.Background(), srv.URL+"/history", "T1")
	require.ErrorIs(t, err, ErrStaleLoad)
	require.Len(t, cache.Entries(), 1)
	require.Equal(t, 1, cache.Document().Len())
}

// resettingThread reports its id once, then resets the session and clears
// the cache, as a clear-conversation landing right after the thread check.
type resettingThread struct {
	fixedThread
	cache *Cache
	once  sync.Once
}

func (r *resettingThread) ThreadID() string {
	id := r.fixedThread.ThreadID()
	r.once.Do(func() {
		r.set("")
		r.cache.Clear()
	})
	return id
}

func TestCacheLoadDiscardedWhenClearedAfterThreadCheck(t *testing.T) {
	srv := newRecordingServer(t)
	srv.fetchFn = func(w http.ResponseWriter, _ string) { _, _ = w.Write([]byte(twoEntries)) }
	threads := &resettingThread{fixedThread: fixedThread{id: "T1"}}
	cache := NewCache(transport.NewClient(srv.Client()), threads, WithClock(clock))
	threads.cache = cache

	err := cache.Load(context.Background(), srv.URL+"/history", "T1")
	require.ErrorIs(t, err, ErrStaleLoad)
	require.Empty(t, threads.fixedThread.ThreadID())
	require.Empty(t, cache.Entries())
	require.Equal(t, 0, cache.Document().Len())
}

func TestCacheLoadDiscardedWhenClearedDuringFetch(t *testing.T) {
	srv := newRecordingServer(t)
	var cache *Cache
	srv.fetchFn = func(w http.ResponseWriter, _ string) {
		cache.Clear()
		_, _ = w.Write([]byte(twoEntries))
	}
	cache = NewCache(transport.NewClient(srv.Client()), &fixedThread{id: "T1"}, WithClock(clock))

	err := cache.Load(context.Background(), srv.URL+"/history", "T1")
	require.ErrorIs(t, err, ErrStaleLoad)
	require.Empty(t, cache.Entries())

	srv.fetchFn = func(w http.ResponseWriter, _ string) { _, _ = w.Write([]byte(twoEntries)) }
	require.NoError(t, cache.Load(context.Background(), srv.URL+"/history", "T1"))
	require.Len(t, cache.Entries(), 2)
}

func TestAppendWithoutSyncIssuesNoRequest(t *testing.T) {
	srv := newRecordingServer(t)
	cache := NewCache(transport.NewClient(srv.Client()), &fixedThread{id: "T1"},
		WithUpdateURL(srv.URL+"/history/update"), WithIDSource(func() string { return "local-a" }))

	cache.Append(context.Background(), Entry{Message: "hi", TimestampMs: 5000, From: SenderUser}, false)
	require.Equal(t, int32(0), srv.updates.Load())
	require.Equal(t, int32(0), srv.fetches.Load())
	require.Equal(t, 1, cache.Document().Len())
}

func TestAppendWithSyncPostsFullDocumentOnce(t *testing.T) {
	srv := newRecordingServer(t)
	srv.fetchFn = func(w http.ResponseWriter, _ string) { _, _ = w.Write([]byte(twoEntries)) }
	ids := []string{"local-u", "local-a"}
	cache := NewCache(transport.NewClient(srv.Client()), &fixedThread{id: "T1"},
		WithUpdateURL(srv.URL+"/history/update"),
		WithClock(clock),
		WithIDSource(func() string { id := ids[0]; ids = ids[1:]; return id }))
	ctx := context.Background()
	require.NoError(t, cache.Load(ctx, srv.URL+"/history", "T1"))

	cache.Append(ctx, Entry{Message: "third?", TimestampMs: 3_000_000, From: SenderUser}, false)
	cache.Append(ctx, Entry{Message: "third!", TimestampMs: 3_000_500, From: SenderSystem}, true)
	require.Equal(t, int32(1), srv.updates.Load())

	posted, err := ParseDocument(srv.body())
	require.NoError(t, err)
	require.Equal(t, "T1", posted.ThreadID)
	require.Equal(t, 4, posted.Len())

	var head WireEntry
	require.NoError(t, json.Unmarshal(posted.Value.Data[0], &head))
	require.Equal(t, "local-a", head.ID)
	require.Equal(t, "assistant", head.Role)
	require.Equal(t, int64(3000), head.CreatedAt)
	var second WireEntry
	require.NoError(t, json.Unmarshal(posted.Value.Data[1], &second))
	require.Equal(t, "local-u", second.ID)
	require.JSONEq(t,
		`{"id":"m2","object":"thread.message","created_at":2000,"role":"assistant","content":[{"type":"text","text":{"value":"second"}}]}`,
		string(posted.Value.Data[2]))
}

func TestAppendSyncFailureIsNotRolledBack(t *testing.T) {
	srv := newRecordingServer(t)
	srv.updateFn = func(w http.ResponseWriter) { http.Error(w, "down", http.StatusServiceUnavailable) }
	cache := NewCache(transport.NewClient(srv.Client()), &fixedThread{id: "T1"}, WithUpdateURL(srv.URL+"/history/update"))

	cache.Append(context.Background(), Entry{Message: "reply", TimestampMs: 1000, From: SenderSystem}, true)
	require.Equal(t, int32(1), srv.updates.Load())
	require.Equal(t, 1, cache.Document().Len())
	require.Len(t, cache.Entries(), 1)
}

func TestAppendSyncFillsThreadID(t *testing.T) {
	srv := newRecordingServer(t)
	cache := NewCache(transport.NewClient(srv.Client()), &fixedThread{id: "T7"}, WithUpdateURL(srv.URL+"/history/update"))
	cache.Append(context.Background(), Entry{Message: "reply", TimestampMs: 1000, From: SenderSystem}, true)

	posted, err := ParseDocument(srv.body())
	require.NoError(t, err)
	require.Equal(t, "T7", posted.ThreadID)
	require.Equal(t, "", cache.Document().ThreadID)
}

func TestPreloaderRunsOncePerThread(t *testing.T) {
	srv := newRecordingServer(t)
	release := make(chan struct{})
	srv.fetchFn = func(w http.ResponseWriter, _ string) {
		<-release
		_, _ = w.Write([]byte(twoEntries))
	}
	cache := NewCache(transport.NewClient(srv.Client()), &fixedThread{id: "T1"}, WithClock(clock))
	p := NewPreloader(cache, srv.URL+"/history")

	p.Start("T1")
	p.Start("T1")
	require.True(t, p.Started("T1"))

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.Wait(context.Background(), "T1")
		}(i)
	}
	close(release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, p.Wait(context.Background(), "T1"))
	require.Equal(t, int32(1), srv.fetches.Load())
	require.Len(t, cache.Entries(), 2)
}

func TestPreloaderRemembersFailure(t *testing.T) {
	srv := newRecordingServer(t)
	srv.fetchFn = func(w http.ResponseWriter, _ string) { http.Error(w, "x", http.StatusNotFound) }
	cache := NewCache(transport.NewClient(srv.Client()), &fixedThread{id: "T1"})
	p := NewPreloader(cache, srv.URL+"/history")

	require.Error(t, p.Wait(context.Background(), "T1"))
	require.Error(t, p.Wait(context.Background(), "T1"))
	require.Equal(t, int32(1), srv.fetches.Load())

	p.Forget("T1")
	require.False(t, p.Started("T1"))
	require.Error(t, p.Wait(context.Background(), "T1"))
	require.Equal(t, int32(2), srv.fetches.Load())
}
