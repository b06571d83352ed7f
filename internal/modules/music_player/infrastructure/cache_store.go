package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kmlvn/beatrix/internal/modules/music_player/application"
	"github.com/kmlvn/beatrix/internal/modules/music_player/application/ports"
)

const indexFileName = "index.json"

// cacheEntry is one stored media file. The index maps cache key to entry and
// survives process restarts.
type cacheEntry struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	LastAccess time.Time `json:"last_access"`
}

// FileStore is the on-disk content-addressed media cache shared by all guild
// sessions. Media files are named by their cache key; eviction is
// least-recently-used down to a byte budget, whole entries at a time.
// Concurrent downloads for one key are collapsed into a single flight.
type FileStore struct {
	dir    string
	budget int64

	mu      sync.Mutex
	entries map[string]*cacheEntry

	group singleflight.Group
}

var _ ports.CacheStore = (*FileStore)(nil)

// NewFileStore opens (or creates) the cache directory and loads the index.
// Index entries whose files have disappeared are dropped.
func NewFileStore(dir string, budget int64) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	s := &FileStore{
		dir:     dir,
		budget:  budget,
		entries: make(map[string]*cacheEntry),
	}
	if err := s.loadIndex(); err != nil {
		slog.Warn("cache index unreadable, starting empty", "dir", dir, "error", err)
		s.entries = make(map[string]*cacheEntry)
	}
	return s, nil
}

// Get returns the path for key and refreshes its last-access time.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *FileStore) getLocked(key string) (string, bool) {
	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if _, err := os.Stat(e.Path); err != nil {
		// File vanished underneath us; drop the stale entry.
		delete(s.entries, key)
		s.saveIndexLocked()
		return "", false
	}
	e.LastAccess = time.Now()
	s.saveIndexLocked()
	return e.Path, true
}

// GetOrFetch returns the cached path for key, downloading on a miss. At most
// one download per key is in flight; concurrent callers share its result.
func (s *FileStore) GetOrFetch(ctx context.Context, key string, fetch ports.FetchFunc) (string, error) {
	if path, ok := s.Get(key); ok {
		return path, nil
	}

	path, err, _ := s.group.Do(key, func() (any, error) {
		// A flight that completed while we waited may have filled the entry.
		if path, ok := s.Get(key); ok {
			return path, nil
		}
		// The flight is shared with every waiter, so it must not die with
		// the caller that happened to start it.
		return s.download(context.WithoutCancel(ctx), key, fetch)
	})
	if err != nil {
		return "", err
	}
	return path.(string), nil
}

func (s *FileStore) download(ctx context.Context, key string, fetch ports.FetchFunc) (string, error) {
	final := filepath.Join(s.dir, key)
	part := final + ".part"

	f, err := os.Create(part)
	if err != nil {
		return "", &application.CacheError{Key: key, Err: err}
	}

	if err := fetch(ctx, f); err != nil {
		f.Close()
		os.Remove(part)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return "", &application.CacheError{Key: key, Err: err}
	}

	// Whole entries only: the partial file becomes visible in one rename.
	if err := os.Rename(part, final); err != nil {
		os.Remove(part)
		return "", &application.CacheError{Key: key, Err: err}
	}

	info, err := os.Stat(final)
	if err != nil {
		return "", &application.CacheError{Key: key, Err: err}
	}

	s.mu.Lock()
	s.entries[key] = &cacheEntry{Path: final, Size: info.Size(), LastAccess: time.Now()}
	s.evictLocked(key)
	s.saveIndexLocked()
	s.mu.Unlock()

	slog.Debug("cached media", "key", key, "size", info.Size())
	return final, nil
}

// Remove deletes the entry and its file. Absent keys are a no-op.
func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	delete(s.entries, key)
	s.saveIndexLocked()
	if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
		return &application.CacheError{Key: key, Err: err}
	}
	return nil
}

// Size returns the total bytes currently accounted in the index.
func (s *FileStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sizeLocked()
}

// Len returns the number of cached entries.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *FileStore) sizeLocked() int64 {
	var total int64
	for _, e := range s.entries {
		total += e.Size
	}
	return total
}

// evictLocked deletes least-recently-used entries until the store fits its
// budget. The entry named by keep (the one just inserted) is never evicted.
func (s *FileStore) evictLocked(keep string) {
	if s.budget <= 0 {
		return
	}

	for s.sizeLocked() > s.budget {
		var oldestKey string
		var oldest *cacheEntry
		for key, e := range s.entries {
			if key == keep {
				continue
			}
			if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
				oldestKey, oldest = key, e
			}
		}
		if oldest == nil {
			return
		}

		delete(s.entries, oldestKey)
		if err := os.Remove(oldest.Path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove evicted cache file", "path", oldest.Path, "error", err)
		}
		slog.Debug("evicted cache entry", "key", oldestKey, "size", oldest.Size)
	}
}

func (s *FileStore) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	entries := make(map[string]*cacheEntry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	for key, e := range entries {
		if _, err := os.Stat(e.Path); err != nil {
			continue
		}
		s.entries[key] = e
	}
	return nil
}

// saveIndexLocked persists the index atomically (temp file + rename).
func (s *FileStore) saveIndexLocked() {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		slog.Warn("failed to encode cache index", "error", err)
		return
	}

	path := filepath.Join(s.dir, indexFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Warn("failed to write cache index", "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		slog.Warn("failed to replace cache index", "error", err)
	}
}
