package application

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"

	"github.com/kmlvn/beatrix/internal/modules/music_player/application/ports"
	"github.com/kmlvn/beatrix/internal/modules/music_player/domain"
)

const (
	testGuildID   = snowflake.ID(100)
	testChannelID = snowflake.ID(200)
	testUserID    = snowflake.ID(300)
)

func testRequester() Requester {
	return Requester{ID: testUserID, Name: "tester"}
}

func testExtraction(url, title string) *ports.Extraction {
	return &ports.Extraction{
		CanonicalURL: url,
		Title:        title,
		Artist:       "Artist",
		Duration:     3 * time.Minute,
		StreamURL:    url + "/stream",
	}
}

type mockExtractor struct {
	mu            sync.Mutex
	candidates    []ports.Candidate
	searchErr     error
	extractions   map[string]*ports.Extraction
	extractErr    error
	downloadErr   error
	searchCalls   int
	extractCalls  int
	downloadCalls int

	// extractFn, when set, replaces the map-based Extract behavior.
	extractFn func(ctx context.Context, url string) (*ports.Extraction, error)
}

func newMockExtractor() *mockExtractor {
	return &mockExtractor{extractions: make(map[string]*ports.Extraction)}
}

func (m *mockExtractor) addTrack(url, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractions[url] = testExtraction(url, title)
}

func (m *mockExtractor) Search(_ context.Context, _ string) ([]ports.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.candidates, nil
}

func (m *mockExtractor) Extract(ctx context.Context, url string) (*ports.Extraction, error) {
	m.mu.Lock()
	m.extractCalls++
	fn := m.extractFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, url)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.extractErr != nil {
		return nil, m.extractErr
	}
	ext, ok := m.extractions[url]
	if !ok {
		return nil, &ResolutionError{Kind: ResolutionNotFound, Reference: url}
	}
	return ext, nil
}

func (m *mockExtractor) Download(_ context.Context, _ string, w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadCalls++
	if m.downloadErr != nil {
		return m.downloadErr
	}
	_, err := w.Write([]byte("media"))
	return err
}

func (m *mockExtractor) calls() (search, extract, download int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchCalls, m.extractCalls, m.downloadCalls
}

type mockCache struct {
	mu      sync.Mutex
	entries map[string]string
	fetches int
	removed []string

	// nextErr is returned by the next GetOrFetch miss, once.
	nextErr error
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]string)}
}

func (m *mockCache) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path, ok := m.entries[key]
	return path, ok
}

func (m *mockCache) GetOrFetch(ctx context.Context, key string, fetch ports.FetchFunc) (string, error) {
	m.mu.Lock()
	if path, ok := m.entries[key]; ok {
		m.mu.Unlock()
		return path, nil
	}
	if m.nextErr != nil {
		err := m.nextErr
		m.nextErr = nil
		m.mu.Unlock()
		return "", err
	}
	m.mu.Unlock()

	var buf bytes.Buffer
	if err := fetch(ctx, &buf); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	path := filepath.Join("cache", key)
	m.entries[key] = path
	return path, nil
}

func (m *mockCache) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, key)
	delete(m.entries, key)
	return nil
}

func (m *mockCache) evict(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

type mockStream struct {
	mu      sync.Mutex
	done    chan error
	finOnce sync.Once
	paused  bool
	volume  float64
	stopped bool
}

func newMockStream(volume float64) *mockStream {
	return &mockStream{done: make(chan error, 1), volume: volume}
}

func (m *mockStream) Done() <-chan error { return m.done }

func (m *mockStream) SetVolume(level float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = level
}

func (m *mockStream) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

func (m *mockStream) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
}

func (m *mockStream) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.end(nil)
}

// end simulates the stream finishing with the given error.
func (m *mockStream) end(err error) {
	m.finOnce.Do(func() { m.done <- err })
}

func (m *mockStream) isPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *mockStream) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *mockStream) currentVolume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

type mockPlayer struct {
	mu       sync.Mutex
	playErr  error
	streams  []*mockStream
	requests []ports.PlayRequest
}

func (m *mockPlayer) Play(_ context.Context, _ snowflake.ID, req ports.PlayRequest) (ports.AudioStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playErr != nil {
		return nil, m.playErr
	}
	stream := newMockStream(req.Volume)
	m.streams = append(m.streams, stream)
	m.requests = append(m.requests, req)
	return stream, nil
}

func (m *mockPlayer) streamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

func (m *mockPlayer) lastStream() *mockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

func (m *mockPlayer) lastRequest() ports.PlayRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return ports.PlayRequest{}
	}
	return m.requests[len(m.requests)-1]
}

type mockVoice struct {
	mu       sync.Mutex
	joinErr  error
	leaveErr error
	joined   []snowflake.ID
	leaves   int
}

func (m *mockVoice) Join(_ context.Context, _, channelID snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joinErr != nil {
		return m.joinErr
	}
	m.joined = append(m.joined, channelID)
	return nil
}

func (m *mockVoice) Leave(_ context.Context, _ snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves++
	if m.leaveErr != nil {
		return m.leaveErr
	}
	return nil
}

func (m *mockVoice) leaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaves
}

// newTestResolver builds a resolver with throttling and backoff disabled so
// tests do not sleep.
func newTestResolver(extractor ports.Extractor, cache ports.CacheStore, retries int) *Resolver {
	r := NewResolver(extractor, cache, retries)
	r.limiter = rate.NewLimiter(rate.Inf, 1)
	r.backoff = time.Millisecond
	return r
}

// sessionFixture wires a session over mocks and tears it down with the test.
type sessionFixture struct {
	t         *testing.T
	extractor *mockExtractor
	cache     *mockCache
	player    *mockPlayer
	voice     *mockVoice
	sess      *Session
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	f := &sessionFixture{
		t:         t,
		extractor: newMockExtractor(),
		cache:     newMockCache(),
		player:    &mockPlayer{},
		voice:     &mockVoice{},
	}
	resolver := newTestResolver(f.extractor, f.cache, 1)
	f.sess = NewSession(testGuildID, resolver, f.player, f.voice, SessionConfig{IdleTimeout: time.Hour}, nil)
	f.sess.Start()

	t.Cleanup(func() {
		f.sess.Close()
		select {
		case <-f.sess.Done():
		case <-time.After(2 * time.Second):
			t.Error("session did not shut down")
		}
	})
	return f
}

// dispatch submits cmd and blocks for its result.
func (f *sessionFixture) dispatch(cmd Command) Result {
	f.t.Helper()

	reply := make(chan Result, 1)
	if err := f.sess.submit(cmd, reply, time.Second); err != nil {
		return Result{CommandID: cmd.ID, Err: err}
	}
	select {
	case res := <-reply:
		return res
	case <-time.After(5 * time.Second):
		f.t.Fatalf("timed out waiting for %s result", cmd.Op)
		return Result{}
	}
}

// enqueue dispatches an enqueue for url, targeting the test voice channel.
func (f *sessionFixture) enqueue(url string) Result {
	f.t.Helper()

	cmd := NewCommand(OpEnqueue, testRequester())
	cmd.Reference = url
	cmd.ChannelID = testChannelID
	return f.dispatch(cmd)
}

// op dispatches a no-argument operation.
func (f *sessionFixture) op(op Operation) Result {
	f.t.Helper()
	return f.dispatch(NewCommand(op, testRequester()))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// waitForPlaying waits until the fixture's player has started n streams.
func (f *sessionFixture) waitForPlaying(n int) *mockStream {
	f.t.Helper()
	waitFor(f.t, "stream start", func() bool { return f.player.streamCount() >= n })
	return f.player.lastStream()
}

func mustTrack(t *testing.T, res Result) *domain.Track {
	t.Helper()
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Track == nil {
		t.Fatal("expected a track in the result")
	}
	return res.Track
}
