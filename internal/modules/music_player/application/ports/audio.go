package ports

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// PlayRequest describes one stream start.
type PlayRequest struct {
	Locator string // local file path or network URL
	Offset  time.Duration
	Volume  float64 // 0.0 - 2.0
}

// AudioStream is the handle to one active stream. The session owns exactly
// one at a time and never shares it.
type AudioStream interface {
	// Done is closed-equivalent: it delivers exactly one value when the
	// stream ends. A nil error means the track played to its natural end
	// or was stopped via Stop.
	Done() <-chan error

	// SetVolume applies a volume change to frames encoded from now on.
	SetVolume(level float64)

	Pause()
	Resume()

	// Stop tears the stream down. Done still fires.
	Stop()
}

// AudioPlayer starts audio streams for a guild's voice connection.
// The core never encodes audio itself; implementations own the transport.
type AudioPlayer interface {
	Play(ctx context.Context, guildID snowflake.ID, req PlayRequest) (AudioStream, error)
}

// VoiceConnector manages the bot's voice channel binding for a guild.
type VoiceConnector interface {
	Join(ctx context.Context, guildID, channelID snowflake.ID) error
	Leave(ctx context.Context, guildID snowflake.ID) error
}
