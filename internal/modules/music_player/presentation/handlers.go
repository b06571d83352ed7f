package presentation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"github.com/kmlvn/beatrix/internal/bot"
	"github.com/kmlvn/beatrix/internal/modules/music_player/application"
	"github.com/kmlvn/beatrix/internal/modules/music_player/application/ports"
	"github.com/kmlvn/beatrix/internal/modules/music_player/domain"
)

// Handlers translates Discord interactions into dispatcher commands and
// renders the structured results back as replies. All argument parsing
// happens here; the dispatcher re-validates at its own boundary.
type Handlers struct {
	dispatcher *application.Dispatcher
	voiceState ports.VoiceStateProvider
}

// NewHandlers creates the interaction handlers.
func NewHandlers(dispatcher *application.Dispatcher, voiceState ports.VoiceStateProvider) *Handlers {
	return &Handlers{dispatcher: dispatcher, voiceState: voiceState}
}

func (h *Handlers) HandlePlay(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	guildID, requester, err := interactionIdentity(i)
	if err != nil {
		return err
	}

	cmd := application.NewCommand(application.OpEnqueue, requester)
	cmd.Reference = optionString(i, "query")
	if channelID, ok := h.voiceState.UserVoiceChannel(guildID, requester.ID); ok {
		cmd.ChannelID = channelID
	}

	// Resolution can take a while; acknowledge now, reply when done.
	if err := r.Defer(); err != nil {
		return err
	}
	res := h.dispatcher.Dispatch(context.Background(), guildID, cmd)
	if res.Err != nil {
		return r.Respond(errorMessage(res.Err), nil)
	}
	return r.Respond("", queuedEmbed(res))
}

func (h *Handlers) HandleSkip(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	return h.simple(i, r, application.OpSkip, func(res application.Result) string {
		if res.Track != nil {
			return "Skipped **" + res.Track.Title + "**."
		}
		return "Skipped."
	})
}

func (h *Handlers) HandleRemove(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	guildID, requester, err := interactionIdentity(i)
	if err != nil {
		return err
	}

	cmd := application.NewCommand(application.OpRemoveByName, requester)
	cmd.Title = optionString(i, "name")

	res := h.dispatcher.Dispatch(context.Background(), guildID, cmd)
	if res.Err != nil {
		return r.Respond(errorMessage(res.Err), nil)
	}
	return r.Respond("Removed **"+res.Track.Title+"** from the queue.", nil)
}

func (h *Handlers) HandleStop(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	return h.simple(i, r, application.OpStop, func(application.Result) string {
		return "Playback stopped and queue cleared."
	})
}

func (h *Handlers) HandlePause(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	return h.simple(i, r, application.OpPause, func(application.Result) string {
		return "Paused."
	})
}

func (h *Handlers) HandleResume(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	return h.simple(i, r, application.OpResume, func(application.Result) string {
		return "Resumed."
	})
}

func (h *Handlers) HandleSeek(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	guildID, requester, err := interactionIdentity(i)
	if err != nil {
		return err
	}

	offset, err := ParseTimestamp(optionString(i, "position"))
	if err != nil {
		return r.Respond(err.Error(), nil)
	}

	cmd := application.NewCommand(application.OpSeek, requester)
	cmd.Offset = offset

	res := h.dispatcher.Dispatch(context.Background(), guildID, cmd)
	if res.Err != nil {
		return r.Respond(errorMessage(res.Err), nil)
	}
	return r.Respond("Seeked to "+domain.FormatDuration(offset)+".", nil)
}

func (h *Handlers) HandleVolume(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	guildID, requester, err := interactionIdentity(i)
	if err != nil {
		return err
	}

	cmd := application.NewCommand(application.OpSetVolume, requester)
	cmd.Volume = optionNumber(i, "level")

	res := h.dispatcher.Dispatch(context.Background(), guildID, cmd)
	if res.Err != nil {
		return r.Respond(errorMessage(res.Err), nil)
	}
	return r.Respond(fmt.Sprintf("Volume set to %d%%.", int(res.Volume*100)), nil)
}

func (h *Handlers) HandleSummon(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	guildID, requester, err := interactionIdentity(i)
	if err != nil {
		return err
	}

	cmd := application.NewCommand(application.OpSummon, requester)
	if channelID, ok := h.voiceState.UserVoiceChannel(guildID, requester.ID); ok {
		cmd.ChannelID = channelID
	}

	res := h.dispatcher.Dispatch(context.Background(), guildID, cmd)
	if res.Err != nil {
		return r.Respond(errorMessage(res.Err), nil)
	}
	return r.Respond("Joined your voice channel.", nil)
}

func (h *Handlers) HandleDisconnect(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	return h.simple(i, r, application.OpDisconnect, func(application.Result) string {
		return "Disconnected and cleared the queue."
	})
}

func (h *Handlers) HandleNowPlaying(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	guildID, requester, err := interactionIdentity(i)
	if err != nil {
		return err
	}

	res := h.dispatcher.Dispatch(context.Background(), guildID, application.NewCommand(application.OpNowPlaying, requester))
	if res.Err != nil {
		return r.Respond(errorMessage(res.Err), nil)
	}
	return r.Respond("", nowPlayingEmbed(res))
}

func (h *Handlers) HandleQueue(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
	guildID, requester, err := interactionIdentity(i)
	if err != nil {
		return err
	}

	res := h.dispatcher.Dispatch(context.Background(), guildID, application.NewCommand(application.OpQueueList, requester))
	if res.Err != nil {
		return r.Respond(errorMessage(res.Err), nil)
	}
	return r.Respond(queueSummary(res), nil)
}

func (h *Handlers) simple(
	i *discordgo.InteractionCreate,
	r bot.Responder,
	op application.Operation,
	message func(application.Result) string,
) error {
	guildID, requester, err := interactionIdentity(i)
	if err != nil {
		return err
	}

	res := h.dispatcher.Dispatch(context.Background(), guildID, application.NewCommand(op, requester))
	if res.Err != nil {
		return r.Respond(errorMessage(res.Err), nil)
	}
	return r.Respond(message(res), nil)
}

func interactionIdentity(i *discordgo.InteractionCreate) (snowflake.ID, application.Requester, error) {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return 0, application.Requester{}, fmt.Errorf("interaction without guild: %w", err)
	}
	if i.Member == nil || i.Member.User == nil {
		return 0, application.Requester{}, errors.New("interaction without member")
	}

	userID, err := snowflake.Parse(i.Member.User.ID)
	if err != nil {
		return 0, application.Requester{}, fmt.Errorf("invalid user id: %w", err)
	}

	name := i.Member.Nick
	if name == "" {
		name = i.Member.User.GlobalName
	}
	if name == "" {
		name = i.Member.User.Username
	}
	return guildID, application.Requester{ID: userID, Name: name}, nil
}

func optionString(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func optionNumber(i *discordgo.InteractionCreate, name string) float64 {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.FloatValue()
		}
	}
	return 0
}

// errorMessage maps every error kind to a distinguishable user-facing
// message.
func errorMessage(err error) string {
	var resErr *application.ResolutionError
	if errors.As(err, &resErr) {
		switch resErr.Kind {
		case application.ResolutionNotFound:
			return "No results found for that query."
		case application.ResolutionExtraction:
			if resErr.Err != nil {
				return "The source refused this track: " + resErr.Err.Error()
			}
			return "The source refused this track."
		default:
			return "Network trouble while resolving the track, try again in a moment."
		}
	}

	var cacheErr *application.CacheError
	if errors.As(err, &cacheErr) {
		return "Local media storage failed for this track."
	}

	switch {
	case errors.Is(err, application.ErrCommandTimeout):
		return "That took too long; the player has been reset."
	case errors.Is(err, application.ErrResolutionDiscarded):
		return "That track was skipped before it finished resolving."
	case errors.Is(err, application.ErrResolverBusy):
		return "Too many tracks are waiting to resolve; try again in a moment."
	case errors.Is(err, application.ErrSessionClosed):
		return "The player is shutting down, try again."
	case application.IsInvalidOperation(err):
		return capitalize(err.Error()) + "."
	}

	slog.Error("unexpected command failure", "error", err)
	return "Something went wrong."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func queuedEmbed(res application.Result) *discordgo.MessageEmbed {
	track := res.Track
	embed := &discordgo.MessageEmbed{
		Title:       track.Title,
		URL:         track.CanonicalURL,
		Description: "Added to the queue",
		Color:       0x3498db,
	}
	if track.Artist != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Artist", Value: track.Artist, Inline: true,
		})
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name: "Duration", Value: track.FormattedDuration(), Inline: true,
	})
	if track.RequesterName != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Requested by " + track.RequesterName}
	}
	return embed
}

func nowPlayingEmbed(res application.Result) *discordgo.MessageEmbed {
	track := res.Track
	position := domain.FormatDuration(res.Position) + " / " + track.FormattedDuration()
	return &discordgo.MessageEmbed{
		Title:       track.Title,
		URL:         track.CanonicalURL,
		Description: "Now playing, " + position,
		Color:       0x2ecc71,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Requested by " + track.RequesterName},
	}
}

func queueSummary(res application.Result) string {
	if res.Track == nil && len(res.Queue) == 0 {
		return "The queue is empty."
	}

	var b strings.Builder
	if res.Track != nil {
		fmt.Fprintf(&b, "Now playing: **%s** [%s]\n", res.Track.Title, res.Track.FormattedDuration())
	}
	for n, track := range res.Queue {
		if n >= 10 {
			fmt.Fprintf(&b, "... and %d more", len(res.Queue)-n)
			break
		}
		fmt.Fprintf(&b, "%d. %s [%s]\n", n+1, track.Title, track.FormattedDuration())
	}
	return strings.TrimRight(b.String(), "\n")
}
