package ports

import (
	"context"
	"io"
	"time"
)

// Candidate is one search hit, before extraction.
type Candidate struct {
	URL   string
	Title string
}

// Extraction is the platform metadata for a single media page.
type Extraction struct {
	CanonicalURL string // normalized page URL, cache identity
	Title        string
	Artist       string
	Duration     time.Duration // 0 when the platform does not report one
	IsLive       bool
	StreamURL    string // direct media URL, input for Download
}

// Extractor is the boundary to the source platform's metadata and stream
// extraction subsystem.
type Extractor interface {
	// Search performs a best-effort free-text search.
	Search(ctx context.Context, query string) ([]Candidate, error)

	// Extract resolves a page URL (or a platform search expression such as
	// "scsearch1:...") into stream metadata.
	Extract(ctx context.Context, url string) (*Extraction, error)

	// Download writes the media behind url to w until EOF.
	Download(ctx context.Context, url string, w io.Writer) error
}
