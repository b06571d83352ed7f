package application

import (
	"errors"
	"fmt"
)

// Invalid-operation errors: surfaced directly to the caller, no side effects.
var (
	// ErrNotConnected is returned when an operation requires the bot to be
	// in a voice channel.
	ErrNotConnected = errors.New("not connected to a voice channel")

	// ErrNotPlaying is returned when no track is currently playing.
	ErrNotPlaying = errors.New("nothing is currently playing")

	// ErrAlreadyPaused is returned when trying to pause while already paused.
	ErrAlreadyPaused = errors.New("playback is already paused")

	// ErrNotPaused is returned when trying to resume while not paused.
	ErrNotPaused = errors.New("playback is not paused")

	// ErrQueueEmpty is returned by skip when nothing is queued or playing.
	ErrQueueEmpty = errors.New("the queue is empty")

	// ErrInvalidPosition is returned for an out-of-range queue index.
	ErrInvalidPosition = errors.New("invalid queue position")

	// ErrTrackNotFound is returned when removal by name matches nothing.
	ErrTrackNotFound = errors.New("no queued track matches that name")

	// ErrSeekOutOfRange is returned when seeking past the end of the track.
	ErrSeekOutOfRange = errors.New("seek position is past the end of the track")

	// ErrSeekUnavailable is returned when the current track cannot be
	// repositioned (live streams).
	ErrSeekUnavailable = errors.New("seeking is not available for this track")

	// ErrEmptyReference is rejected at the dispatcher boundary.
	ErrEmptyReference = errors.New("track reference must not be empty")

	// ErrUserNotInVoice is returned when the requester is not in a voice
	// channel and the operation needs one to target.
	ErrUserNotInVoice = errors.New("you must be in a voice channel")
)

// Lifecycle errors.
var (
	// ErrCommandTimeout is returned when a command waited too long behind a
	// stuck prior command. The session is force-reset to idle afterwards.
	ErrCommandTimeout = errors.New("command timed out waiting for the session")

	// ErrSessionClosed is returned when dispatching to a session that has
	// been torn down.
	ErrSessionClosed = errors.New("session is closed")

	// ErrResolutionDiscarded is reported for an enqueue whose in-flight
	// resolution was cancelled by a later skip, stop or disconnect.
	ErrResolutionDiscarded = errors.New("resolution discarded")

	// ErrResolverBusy is returned when the guild's resolution pipeline is
	// saturated and cannot accept another enqueue.
	ErrResolverBusy = errors.New("too many tracks are waiting to resolve")
)

// ResolutionKind distinguishes why a reference failed to resolve, so the
// caller can decide whether a retry is worthwhile.
type ResolutionKind int

const (
	// ResolutionNotFound: the platform produced no match. Not retryable.
	ResolutionNotFound ResolutionKind = iota

	// ResolutionExtraction: the platform returned malformed or blocked
	// data. The platform message is preserved. Not retryable.
	ResolutionExtraction

	// ResolutionNetwork: transport failure. Retried with backoff before
	// being surfaced.
	ResolutionNetwork
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionNotFound:
		return "not_found"
	case ResolutionExtraction:
		return "extraction"
	case ResolutionNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// ResolutionError reports a failed reference resolution.
type ResolutionError struct {
	Kind      ResolutionKind
	Reference string
	Err       error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolving %q: %s", e.Reference, e.Kind)
	}
	return fmt.Sprintf("resolving %q: %s: %v", e.Reference, e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// CacheError reports a cache store I/O failure (disk full, permissions,
// corrupt entry). Non-retryable; the offending entry is purged and the
// resolution retried once before this surfaces.
type CacheError struct {
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache entry %s: %v", e.Key, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// IsInvalidOperation reports whether err is a caller mistake rather than a
// system failure. Presentation renders these without an error log.
func IsInvalidOperation(err error) bool {
	for _, sentinel := range []error{
		ErrNotConnected, ErrNotPlaying, ErrAlreadyPaused, ErrNotPaused,
		ErrQueueEmpty, ErrInvalidPosition, ErrTrackNotFound,
		ErrSeekOutOfRange, ErrSeekUnavailable, ErrEmptyReference, ErrUserNotInVoice,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
