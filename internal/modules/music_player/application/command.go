package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"

	"github.com/kmlvn/beatrix/internal/modules/music_player/domain"
)

// Operation identifies one session operation. Free-form payloads from the
// command source are converted to a Command exactly once, at the dispatcher
// boundary; the state machine only ever sees validated values.
type Operation string

const (
	OpEnqueue      Operation = "enqueue"
	OpSkip         Operation = "skip"
	OpRemoveByName Operation = "remove_by_name"
	OpStop         Operation = "stop"
	OpPause        Operation = "pause"
	OpResume       Operation = "resume"
	OpSeek         Operation = "seek"
	OpSetVolume    Operation = "set_volume"
	OpSummon       Operation = "summon"
	OpDisconnect   Operation = "disconnect"
	OpNowPlaying   Operation = "now_playing"
	OpQueueList    Operation = "queue"
)

// Volume bounds. Levels outside the range are clamped, not rejected.
const (
	MinVolume = 0.0
	MaxVolume = 2.0
)

// ClampVolume clamps level to the valid [MinVolume, MaxVolume] range.
func ClampVolume(level float64) float64 {
	if level < MinVolume {
		return MinVolume
	}
	if level > MaxVolume {
		return MaxVolume
	}
	return level
}

// Requester identifies the user behind a command.
type Requester struct {
	ID   snowflake.ID
	Name string
}

// Command is one validated session operation.
type Command struct {
	ID        uuid.UUID
	Op        Operation
	Requester Requester

	Reference string        // OpEnqueue
	Title     string        // OpRemoveByName
	Offset    time.Duration // OpSeek
	Volume    float64       // OpSetVolume, clamped during validation
	ChannelID snowflake.ID  // OpSummon
}

// NewCommand builds a Command with a fresh correlation ID.
func NewCommand(op Operation, requester Requester) Command {
	return Command{ID: uuid.New(), Op: op, Requester: requester}
}

// Validate checks argument structure and normalizes clampable values.
// Called once by the dispatcher before the command reaches a session.
func (c *Command) Validate() error {
	switch c.Op {
	case OpEnqueue:
		if strings.TrimSpace(c.Reference) == "" {
			return ErrEmptyReference
		}
	case OpRemoveByName:
		if strings.TrimSpace(c.Title) == "" {
			return ErrTrackNotFound
		}
	case OpSeek:
		if c.Offset < 0 {
			return ErrSeekOutOfRange
		}
	case OpSetVolume:
		c.Volume = ClampVolume(c.Volume)
	case OpSummon:
		if c.ChannelID == 0 {
			return ErrUserNotInVoice
		}
	case OpSkip, OpStop, OpPause, OpResume, OpDisconnect, OpNowPlaying, OpQueueList:
		// no arguments
	default:
		return fmt.Errorf("unknown operation %q", c.Op)
	}
	return nil
}

// Result is the structured outcome of one dispatched command. The rendering
// layer turns it into a user-facing reply; Err carries the specific error
// kind when the operation failed.
type Result struct {
	CommandID uuid.UUID
	State     domain.PlaybackState
	Track     *domain.Track   // track the operation acted on, if any
	Queue     []*domain.Track // queue snapshot after the operation
	Position  time.Duration
	Volume    float64
	Err       error
}

// Ok reports whether the operation succeeded.
func (r Result) Ok() bool {
	return r.Err == nil
}
