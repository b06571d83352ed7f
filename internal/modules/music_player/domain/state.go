package domain

// PlaybackState is the state of a guild session's playback machine.
type PlaybackState string

const (
	// StateIdle: no current track. Either not connected, or connected with
	// nothing to play.
	StateIdle PlaybackState = "idle"

	// StateResolving: a track is being resolved or its cached media is being
	// re-fetched; nothing is streaming yet.
	StateResolving PlaybackState = "resolving"

	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"

	// StateSeeking is transient: the stream is being reopened at a new
	// offset and re-enters Playing (or Paused) immediately after.
	StateSeeking PlaybackState = "seeking"

	// StateFinished: the current track ended (naturally or by skip) and the
	// session is about to advance.
	StateFinished PlaybackState = "finished"

	// StateError: the last operation failed. The session stays alive and
	// accepts further commands.
	StateError PlaybackState = "error"
)

var transitions = map[PlaybackState][]PlaybackState{
	StateIdle:      {StateResolving},
	StateResolving: {StatePlaying, StateResolving, StateError, StateIdle, StateFinished},
	StatePlaying:   {StatePaused, StateSeeking, StateFinished, StateIdle, StateError},
	StatePaused:    {StatePlaying, StateSeeking, StateFinished, StateIdle},
	StateSeeking:   {StatePlaying, StatePaused, StateError},
	StateFinished:  {StateResolving, StateIdle},
	StateError:     {StateResolving, StateIdle, StateFinished},
}

// CanTransitionTo reports whether moving from s to next is a legal state
// machine step. A forced disconnect may enter Idle from any state, which is
// encoded in the table above.
func (s PlaybackState) CanTransitionTo(next PlaybackState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsActive returns true while a track is current (streaming, paused, or
// mid-seek).
func (s PlaybackState) IsActive() bool {
	return s == StatePlaying || s == StatePaused || s == StateSeeking
}

func (s PlaybackState) String() string {
	return string(s)
}
