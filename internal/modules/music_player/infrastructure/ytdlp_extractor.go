package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"

	"github.com/kmlvn/beatrix/internal/modules/music_player/application"
	"github.com/kmlvn/beatrix/internal/modules/music_player/application/ports"
)

const audioFormat = "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best"

// YtdlpExtractor implements the extraction boundary with yt-dlp for
// metadata/downloads and the YouTube search API for free-text queries.
type YtdlpExtractor struct {
	search *ytsearch.Client
}

var _ ports.Extractor = (*YtdlpExtractor)(nil)

// NewYtdlpExtractor creates an extractor. The yt-dlp binary is expected on
// PATH.
func NewYtdlpExtractor() *YtdlpExtractor {
	return &YtdlpExtractor{search: ytsearch.NewClient(nil)}
}

// Search performs a free-text search and returns candidate page URLs,
// best match first.
func (e *YtdlpExtractor) Search(ctx context.Context, query string) ([]ports.Candidate, error) {
	res, err := e.search.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	candidates := make([]ports.Candidate, 0, len(res.Results))
	for _, v := range res.Results {
		if v.VideoID == "" {
			continue
		}
		candidates = append(candidates, ports.Candidate{
			URL:   "https://www.youtube.com/watch?v=" + v.VideoID,
			Title: v.Title,
		})
	}
	return candidates, nil
}

func baseCommand() *ytdlp.Command {
	return ytdlp.New().
		Quiet().
		NoWarnings()
}

func commonArgs() []string {
	return []string{
		"--no-playlist",
		"--no-check-certificates",
		"--socket-timeout", "30",
		"--retries", "3",
	}
}

// Extract resolves a page URL or platform search expression into stream
// metadata.
func (e *YtdlpExtractor) Extract(ctx context.Context, url string) (*ports.Extraction, error) {
	cmd := baseCommand().
		Print("%(webpage_url)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(is_live)s\t%(url)s").
		Format(audioFormat).
		IgnoreConfig()

	args := append(commonArgs(), "--skip-download", url)
	res, err := cmd.Run(ctx, args...)
	if err != nil {
		return nil, classifyExtractionError(url, err, stderrOf(res))
	}

	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 6 {
			continue
		}
		duration, _ := time.ParseDuration(fields[3] + "s")
		return &ports.Extraction{
			CanonicalURL: fields[0],
			Title:        fields[1],
			Artist:       artistOrEmpty(fields[2]),
			Duration:     duration,
			IsLive:       strings.EqualFold(fields[4], "true"),
			StreamURL:    fields[5],
		}, nil
	}

	return nil, &application.ResolutionError{Kind: application.ResolutionNotFound, Reference: url}
}

// Download writes the media behind url to w until EOF. yt-dlp handles both
// page URLs and direct media URLs.
func (e *YtdlpExtractor) Download(ctx context.Context, url string, w io.Writer) error {
	execCmd := baseCommand().
		Format(audioFormat).
		Output("-").
		NoSimulate().
		NoPart().
		NoPlaylist().
		NoCheckCertificates().
		BuildCommand(ctx, url)

	execCmd.Stdout = w
	var stderr bytes.Buffer
	execCmd.Stderr = &stderr

	if err := execCmd.Start(); err != nil {
		return fmt.Errorf("failed to start yt-dlp: %w", err)
	}
	if err := execCmd.Wait(); err != nil {
		return classifyExtractionError(url, err, stderr.String())
	}
	return nil
}

// classifyExtractionError maps yt-dlp failures onto the resolution taxonomy:
// definitive platform answers become typed errors, everything else stays
// plain and is retried as a transport failure.
func classifyExtractionError(url string, err error, stderr string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error() + " " + stderr)
	switch {
	case strings.Contains(msg, "no such video"),
		strings.Contains(msg, "video unavailable"),
		strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "404"):
		return &application.ResolutionError{Kind: application.ResolutionNotFound, Reference: url, Err: errors.New(firstStderrLine(stderr))}

	case strings.Contains(msg, "drm"),
		strings.Contains(msg, "private video"),
		strings.Contains(msg, "unsupported url"),
		strings.Contains(msg, "sign in to confirm"),
		strings.Contains(msg, "blocked"):
		return &application.ResolutionError{Kind: application.ResolutionExtraction, Reference: url, Err: errors.New(firstStderrLine(stderr))}
	}
	return fmt.Errorf("yt-dlp failed: %w", err)
}

func firstStderrLine(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if i := strings.IndexByte(stderr, '\n'); i >= 0 {
		stderr = stderr[:i]
	}
	if stderr == "" {
		return "extraction failed"
	}
	return stderr
}

func artistOrEmpty(uploader string) string {
	if uploader == "NA" {
		return ""
	}
	return uploader
}

func stderrOf(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}
	return res.Stderr
}
