package presentation

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kmlvn/beatrix/internal/bot"
)

// PingHandler handles the /ping command.
type PingHandler struct {
	startedAt time.Time
}

// NewPingHandler creates a new PingHandler.
func NewPingHandler() *PingHandler {
	return &PingHandler{startedAt: time.Now()}
}

// Handle reports the gateway heartbeat latency and process uptime.
func (h *PingHandler) Handle(
	s *discordgo.Session,
	_ *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	uptime := time.Since(h.startedAt).Round(time.Second)

	content := "Pong!"
	if s != nil {
		content = fmt.Sprintf("Pong! Gateway latency %dms, up %s",
			s.HeartbeatLatency().Milliseconds(), uptime)
	}

	return r.Respond(content, nil)
}
