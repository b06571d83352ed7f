package infrastructure

import (
	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"github.com/kmlvn/beatrix/internal/modules/music_player/application/ports"
)

// DiscordVoiceState looks up user voice channels from the gateway state
// cache.
type DiscordVoiceState struct {
	session *discordgo.Session
}

var _ ports.VoiceStateProvider = (*DiscordVoiceState)(nil)

// NewDiscordVoiceState creates a voice state provider.
func NewDiscordVoiceState(session *discordgo.Session) *DiscordVoiceState {
	return &DiscordVoiceState{session: session}
}

// UserVoiceChannel returns the voice channel the user currently occupies in
// the guild, or false when they are not in voice.
func (p *DiscordVoiceState) UserVoiceChannel(guildID, userID snowflake.ID) (snowflake.ID, bool) {
	vs, err := p.session.State.VoiceState(guildID.String(), userID.String())
	if err != nil || vs == nil || vs.ChannelID == "" {
		return 0, false
	}

	channelID, err := snowflake.Parse(vs.ChannelID)
	if err != nil {
		return 0, false
	}
	return channelID, true
}
