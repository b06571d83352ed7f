package infrastructure

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kmlvn/beatrix/internal/modules/music_player/application/ports"
)

func TestFfmpegArgs_LocalFile(t *testing.T) {
	args := ffmpegArgs(ports.PlayRequest{Locator: "/cache/abc123"})

	if slices.Contains(args, "-reconnect") {
		t.Error("local files must not get reconnect flags")
	}
	if slices.Contains(args, "-ss") {
		t.Error("zero offset must not produce a seek flag")
	}
	idx := slices.Index(args, "-i")
	if idx < 0 || args[idx+1] != "/cache/abc123" {
		t.Errorf("expected the locator as input, got %v", args)
	}
	if !slices.Contains(args, loudnessFilter) {
		t.Error("expected the loudness filter to be applied")
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("expected output to stdout, got %q", args[len(args)-1])
	}
}

func TestFfmpegArgs_NetworkLocatorGetsReconnect(t *testing.T) {
	args := ffmpegArgs(ports.PlayRequest{Locator: "https://cdn.example.com/stream"})

	if !slices.Contains(args, "-reconnect") {
		t.Error("network locators must get reconnect flags")
	}
}

func TestFfmpegArgs_Offset(t *testing.T) {
	args := ffmpegArgs(ports.PlayRequest{Locator: "/cache/abc123", Offset: 90 * time.Second})

	idx := slices.Index(args, "-ss")
	if idx < 0 || args[idx+1] != "90.000" {
		t.Errorf("expected -ss 90.000, got %v", args)
	}
	// The seek must precede the input for fast input seeking.
	if idx > slices.Index(args, "-i") {
		t.Error("expected -ss before -i")
	}
}

func TestPcmStream_PauseResumeStop(t *testing.T) {
	s := &pcmStream{
		done: make(chan error, 1),
		stop: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.pauseMu)

	s.Pause()
	resumed := make(chan struct{})
	go func() {
		s.waitWhilePaused()
		close(resumed)
	}()

	select {
	case <-resumed:
		t.Fatal("waitWhilePaused returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	s.Resume()
	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("waitWhilePaused did not return after resume")
	}

	// Stop releases a paused waiter and reports stopped.
	s.Pause()
	stopped := make(chan bool, 1)
	go func() { stopped <- s.waitWhilePaused() }()
	s.Stop()

	select {
	case keepGoing := <-stopped:
		if keepGoing {
			t.Error("expected waitWhilePaused to report stopped")
		}
	case <-time.After(time.Second):
		t.Fatal("waitWhilePaused did not return after stop")
	}
}
