package presentation

import "github.com/bwmarrin/discordgo"

// Commands returns the slash command definitions for the music player.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a track, or add it to the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "Song name or direct link",
					Required:    true,
				},
			},
		},
		{
			Name:        "skip",
			Description: "Skip the current track",
		},
		{
			Name:        "remove",
			Description: "Remove a queued track by name",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Name (or part of it) of the queued track",
					Required:    true,
				},
			},
		},
		{
			Name:        "stop",
			Description: "Stop playback and clear the queue",
		},
		{
			Name:        "pause",
			Description: "Pause playback",
		},
		{
			Name:        "resume",
			Description: "Resume paused playback",
		},
		{
			Name:        "seek",
			Description: "Jump to a position in the current track",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "position",
					Description: "Position as seconds, MM:SS or HH:MM:SS",
					Required:    true,
				},
			},
		},
		{
			Name:        "volume",
			Description: "Set playback volume (0.0 - 2.0)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionNumber,
					Name:        "level",
					Description: "Volume from 0.0 (mute) to 2.0 (maximum)",
					Required:    true,
				},
			},
		},
		{
			Name:        "summon",
			Description: "Bring the bot to your voice channel",
		},
		{
			Name:        "disconnect",
			Description: "Disconnect from voice and clear the queue",
		},
		{
			Name:        "nowplaying",
			Description: "Show the current track",
		},
		{
			Name:        "queue",
			Description: "Show the queue",
		},
	}
}
