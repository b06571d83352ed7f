package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kmlvn/beatrix/internal/modules/music_player/application/ports"
	"github.com/kmlvn/beatrix/internal/modules/music_player/domain"
)

// Resolver turns a user reference (free text or URL) into an immutable
// domain.Track whose locator is ready to stream: a cached local file, or the
// direct stream URL for live content.
type Resolver struct {
	extractor ports.Extractor
	cache     ports.CacheStore
	limiter   *rate.Limiter
	retries   int
	backoff   time.Duration
}

// NewResolver creates a Resolver. retries bounds the retry attempts for
// network failures; extraction calls are throttled by limiter.
func NewResolver(extractor ports.Extractor, cache ports.CacheStore, retries int) *Resolver {
	if retries < 1 {
		retries = 1
	}
	return &Resolver{
		extractor: extractor,
		cache:     cache,
		limiter:   rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		retries:   retries,
		backoff:   time.Second,
	}
}

// Resolve resolves reference into a Track for the given requester. It may
// block on network and disk for a non-trivial time; callers run it off the
// session loop and cancel via ctx.
func (r *Resolver) Resolve(ctx context.Context, reference string, requester Requester) (*domain.Track, error) {
	normalized := NormalizeReference(reference)
	if normalized != reference {
		slog.Debug("normalized reference", "from", reference, "to", normalized)
	}

	target := normalized
	if !isExtractionTarget(normalized) {
		candidates, err := r.search(ctx, normalized)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, &ResolutionError{Kind: ResolutionNotFound, Reference: reference}
		}
		target = candidates[0].URL
	}

	ext, err := r.extract(ctx, reference, target)
	if err != nil {
		return nil, err
	}

	track := &domain.Track{
		Reference:     reference,
		CanonicalURL:  ext.CanonicalURL,
		Title:         ext.Title,
		Artist:        ext.Artist,
		Duration:      ext.Duration,
		IsLive:        ext.IsLive,
		RequesterID:   requester.ID,
		RequesterName: requester.Name,
		EnqueuedAt:    time.Now().UTC(),
	}

	if ext.IsLive {
		// Live content is streamed directly and never cached.
		track.Locator = ext.StreamURL
		return track, nil
	}

	track.CacheKey = CacheKey(ext.CanonicalURL)
	path, err := r.fetchCached(ctx, track.CacheKey, ext.StreamURL)
	if err != nil {
		return nil, err
	}
	track.Locator = path
	return track, nil
}

// EnsureAvailable re-checks that a previously resolved track's media is
// still present, re-fetching it if the cache evicted the entry between
// enqueue and playback. Returns the (possibly refreshed) locator.
func (r *Resolver) EnsureAvailable(ctx context.Context, track *domain.Track) (string, error) {
	if track.IsLive || track.CacheKey == "" {
		return track.Locator, nil
	}
	if path, ok := r.cache.Get(track.CacheKey); ok {
		return path, nil
	}

	slog.Debug("cached media evicted, re-fetching", "title", track.Title, "key", track.CacheKey)
	ext, err := r.extract(ctx, track.Reference, track.CanonicalURL)
	if err != nil {
		return "", err
	}
	return r.fetchCached(ctx, track.CacheKey, ext.StreamURL)
}

func (r *Resolver) search(ctx context.Context, query string) ([]ports.Candidate, error) {
	var lastErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		if err := r.wait(ctx, attempt); err != nil {
			return nil, err
		}
		candidates, err := r.extractor.Search(ctx, query)
		if err == nil {
			return candidates, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
		slog.Debug("search attempt failed", "query", query, "attempt", attempt+1, "error", err)
	}
	return nil, asResolutionError(query, lastErr)
}

func (r *Resolver) extract(ctx context.Context, reference, target string) (*ports.Extraction, error) {
	var lastErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		if err := r.wait(ctx, attempt); err != nil {
			return nil, err
		}
		ext, err := r.extractor.Extract(ctx, target)
		if err == nil {
			return ext, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
		slog.Debug("extraction attempt failed", "target", target, "attempt", attempt+1, "error", err)
	}
	return nil, asResolutionError(reference, lastErr)
}

// fetchCached downloads through the cache store. A corrupt entry is purged
// and the download retried once before the error surfaces.
func (r *Resolver) fetchCached(ctx context.Context, key, streamURL string) (string, error) {
	fetch := func(ctx context.Context, w io.Writer) error {
		return r.extractor.Download(ctx, streamURL, w)
	}

	path, err := r.cache.GetOrFetch(ctx, key, fetch)
	if err == nil {
		return path, nil
	}

	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		slog.Warn("purging corrupt cache entry", "key", key, "error", err)
		_ = r.cache.Remove(key)
		return r.cache.GetOrFetch(ctx, key, fetch)
	}
	return "", err
}

func (r *Resolver) wait(ctx context.Context, attempt int) error {
	if attempt > 0 {
		backoff := time.Duration(attempt) * r.backoff
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return r.limiter.Wait(ctx)
}

// isRetryable: typed resolution errors are definitive platform answers;
// anything else is treated as a transport failure worth retrying.
func isRetryable(err error) bool {
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return resErr.Kind == ResolutionNetwork
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func asResolutionError(reference string, err error) error {
	if err == nil {
		return &ResolutionError{Kind: ResolutionNotFound, Reference: reference}
	}
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ResolutionError{Kind: ResolutionNetwork, Reference: reference, Err: err}
}

// CacheKey derives the content-addressed store key for a canonical locator.
func CacheKey(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

var soundcloudDomains = []string{"soundcloud.com", "on.soundcloud.com"}

var soundcloudPrefixes = []string{"sc ", "soundcloud ", "sc:", "soundcloud:"}

// NormalizeReference rewrites user shorthand into extractor input: explicit
// SoundCloud prefixes become scsearch expressions and bare soundcloud.com
// hosts are promoted to https URLs. Anything else passes through unchanged.
func NormalizeReference(reference string) string {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return reference
	}

	lowered := strings.ToLower(reference)

	for _, prefix := range soundcloudPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			rest := strings.TrimSpace(reference[len(prefix):])
			if rest != "" {
				return "scsearch1:" + rest
			}
			return reference
		}
	}

	if strings.HasPrefix(lowered, "scsearch") {
		return reference
	}

	if !looksLikeURL(lowered) && !strings.Contains(reference, " ") {
		stripped := strings.ToLower(strings.TrimPrefix(reference, "www."))
		for _, host := range soundcloudDomains {
			if strings.Contains(stripped, host) {
				return "https://" + reference
			}
		}
	}

	return reference
}

func looksLikeURL(lowered string) bool {
	return strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://")
}

// isExtractionTarget reports whether the normalized reference can be handed
// to the extractor directly, skipping the search step.
func isExtractionTarget(normalized string) bool {
	lowered := strings.ToLower(normalized)
	return looksLikeURL(lowered) || strings.HasPrefix(lowered, "scsearch")
}
