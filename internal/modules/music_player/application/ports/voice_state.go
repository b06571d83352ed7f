package ports

import "github.com/disgoorg/snowflake/v2"

// VoiceStateProvider looks up which voice channel a user currently occupies.
// Used at the presentation boundary to target summon at the caller's channel.
type VoiceStateProvider interface {
	// UserVoiceChannel returns the voice channel of the user in the guild.
	// The second return value is false when the user is not in voice.
	UserVoiceChannel(guildID, userID snowflake.ID) (snowflake.ID, bool)
}
