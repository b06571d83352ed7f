package domain

import (
	"strconv"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Track is a fully resolved, playable media reference. It is built by the
// resolver when a track is enqueued and never mutated afterwards.
type Track struct {
	Reference     string // original user input (query or URL)
	Locator       string // playable source: cached file path, or stream URL for live content
	CanonicalURL  string // normalized page URL, the deduplication identity
	Title         string
	Artist        string
	Duration      time.Duration // 0 when unknown
	IsLive        bool
	CacheKey      string // empty for live content (never cached)
	RequesterID   snowflake.ID
	RequesterName string
	EnqueuedAt    time.Time
}

// IsValid returns true if the track has the minimum required fields.
func (t *Track) IsValid() bool {
	return t.Locator != "" && t.Title != ""
}

// HasKnownDuration reports whether the source declared a finite duration.
func (t *Track) HasKnownDuration() bool {
	return !t.IsLive && t.Duration > 0
}

// FormattedDuration returns the duration as mm:ss or hh:mm:ss.
func (t *Track) FormattedDuration() string {
	if t.IsLive {
		return "LIVE"
	}
	return FormatDuration(t.Duration)
}

// FormatDuration renders a duration as mm:ss, or hh:mm:ss past the hour.
func FormatDuration(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return pad(hours) + ":" + pad(minutes) + ":" + pad(seconds)
	}
	return pad(minutes) + ":" + pad(seconds)
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
