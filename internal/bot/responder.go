package bot

import "github.com/bwmarrin/discordgo"

// Responder provides an abstraction for replying to Discord interactions.
// Handlers that do slow work call Defer first to acknowledge within
// Discord's interaction deadline, then Respond with the final reply.
// The interface enables testing handlers without a live Discord connection.
type Responder interface {
	// Defer acknowledges the interaction so the final reply can arrive
	// later than Discord's three second deadline.
	Defer() error

	// Respond sends the reply. After a Defer it is delivered as a
	// followup message. Either content or embed may be empty.
	Respond(content string, embed *discordgo.MessageEmbed) error
}

// DiscordResponder implements Responder using a live Discord session.
type DiscordResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
	deferred    bool
}

// NewDiscordResponder creates a new DiscordResponder.
func NewDiscordResponder(s *discordgo.Session, i *discordgo.Interaction) *DiscordResponder {
	return &DiscordResponder{
		session:     s,
		interaction: i,
	}
}

// Defer sends a deferred acknowledgement for the interaction.
func (r *DiscordResponder) Defer() error {
	err := r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		return err
	}
	r.deferred = true
	return nil
}

// Respond delivers the reply, as a followup if Defer was called.
func (r *DiscordResponder) Respond(content string, embed *discordgo.MessageEmbed) error {
	var embeds []*discordgo.MessageEmbed
	if embed != nil {
		embeds = []*discordgo.MessageEmbed{embed}
	}

	if r.deferred {
		_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
			Content: content,
			Embeds:  embeds,
		})
		return err
	}

	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Embeds:  embeds,
		},
	})
}

// MockResponder is a test double for Responder.
type MockResponder struct {
	Deferred    bool
	LastContent string
	LastEmbed   *discordgo.MessageEmbed
	Responded   bool
	DeferErr    error
	RespondErr  error
}

// Defer records the acknowledgement for testing.
func (m *MockResponder) Defer() error {
	if m.DeferErr != nil {
		return m.DeferErr
	}
	m.Deferred = true
	return nil
}

// Respond records the reply for testing.
func (m *MockResponder) Respond(content string, embed *discordgo.MessageEmbed) error {
	if m.RespondErr != nil {
		return m.RespondErr
	}
	m.Responded = true
	m.LastContent = content
	m.LastEmbed = embed
	return nil
}
