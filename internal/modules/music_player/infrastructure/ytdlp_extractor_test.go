package infrastructure

import (
	"context"
	"errors"
	"testing"

	"github.com/kmlvn/beatrix/internal/modules/music_player/application"
)

func TestClassifyExtractionError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		stderr string
		kind   application.ResolutionKind
		typed  bool
	}{
		{"unavailable video", errors.New("exit status 1"), "ERROR: Video unavailable", application.ResolutionNotFound, true},
		{"missing video", errors.New("exit status 1"), "ERROR: no such video", application.ResolutionNotFound, true},
		{"http 404", errors.New("HTTP Error 404"), "", application.ResolutionNotFound, true},
		{"drm protected", errors.New("exit status 1"), "ERROR: this video is DRM protected", application.ResolutionExtraction, true},
		{"private video", errors.New("exit status 1"), "ERROR: Private video", application.ResolutionExtraction, true},
		{"unsupported url", errors.New("exit status 1"), "ERROR: Unsupported URL", application.ResolutionExtraction, true},
		{"geo blocked", errors.New("exit status 1"), "ERROR: blocked in your country", application.ResolutionExtraction, true},
		{"transport failure stays plain", errors.New("connection reset by peer"), "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyExtractionError("https://example.com/x", tt.err, tt.stderr)

			var resErr *application.ResolutionError
			if errors.As(err, &resErr) != tt.typed {
				t.Fatalf("typed=%v, want %v (err %v)", !tt.typed, tt.typed, err)
			}
			if tt.typed && resErr.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, resErr.Kind)
			}
		})
	}
}

func TestClassifyExtractionError_ContextPassthrough(t *testing.T) {
	err := classifyExtractionError("u", context.Canceled, "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled to pass through, got %v", err)
	}
}

func TestFirstStderrLine(t *testing.T) {
	if got := firstStderrLine("ERROR: boom\nWARNING: later"); got != "ERROR: boom" {
		t.Errorf("expected first line, got %q", got)
	}
	if got := firstStderrLine(""); got != "extraction failed" {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestArtistOrEmpty(t *testing.T) {
	if got := artistOrEmpty("NA"); got != "" {
		t.Errorf("expected empty artist for NA, got %q", got)
	}
	if got := artistOrEmpty("Some Artist"); got != "Some Artist" {
		t.Errorf("expected the artist passed through, got %q", got)
	}
}
