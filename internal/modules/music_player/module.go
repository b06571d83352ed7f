package music_player

import (
	"errors"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/caarlos0/env/v11"

	"github.com/kmlvn/beatrix/internal/bot"
	"github.com/kmlvn/beatrix/internal/modules/music_player/application"
	"github.com/kmlvn/beatrix/internal/modules/music_player/infrastructure"
	"github.com/kmlvn/beatrix/internal/modules/music_player/presentation"
)

func init() {
	bot.Register(&MusicPlayerModule{})
}

// Compile-time interface checks.
var _ bot.ConfigurableModule = (*MusicPlayerModule)(nil)

// MusicPlayerModule provides per-guild music playback commands.
type MusicPlayerModule struct {
	config   *Config
	cache    *infrastructure.FileStore
	registry *application.Registry
	handlers *presentation.Handlers
}

// Name returns the module name.
func (m *MusicPlayerModule) Name() string {
	return "music_player"
}

// Commands returns the slash commands for this module.
func (m *MusicPlayerModule) Commands() []*discordgo.ApplicationCommand {
	return presentation.Commands()
}

// CommandHandlers returns the command handlers for this module.
func (m *MusicPlayerModule) CommandHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		"play":       m.handlers.HandlePlay,
		"skip":       m.handlers.HandleSkip,
		"remove":     m.handlers.HandleRemove,
		"stop":       m.handlers.HandleStop,
		"pause":      m.handlers.HandlePause,
		"resume":     m.handlers.HandleResume,
		"seek":       m.handlers.HandleSeek,
		"volume":     m.handlers.HandleVolume,
		"summon":     m.handlers.HandleSummon,
		"disconnect": m.handlers.HandleDisconnect,
		"nowplaying": m.handlers.HandleNowPlaying,
		"queue":      m.handlers.HandleQueue,
	}
}

// EventHandlers returns the event handlers for this module.
func (m *MusicPlayerModule) EventHandlers() []bot.EventHandler {
	return nil
}

// LoadConfig loads module-specific configuration from environment variables.
func (m *MusicPlayerModule) LoadConfig() error {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return err
	}
	if cfg.CacheBudgetMB <= 0 {
		return errors.New("cache budget must be positive")
	}
	m.config = cfg
	return nil
}

// Init wires the playback pipeline together.
func (m *MusicPlayerModule) Init(deps bot.ModuleDependencies) error {
	if deps.Session == nil {
		return errors.New("music_player module requires a Discord session")
	}

	cache, err := infrastructure.NewFileStore(m.config.CacheDir, m.config.CacheBudgetMB*1024*1024)
	if err != nil {
		return err
	}
	m.cache = cache

	extractor := infrastructure.NewYtdlpExtractor()
	resolver := application.NewResolver(extractor, cache, m.config.ResolveRetries)
	voice := infrastructure.NewDiscordVoice(deps.Session)

	m.registry = application.NewRegistry(resolver, voice, voice, application.SessionConfig{
		IdleTimeout: m.config.IdleTimeout,
	})
	dispatcher := application.NewDispatcher(m.registry, m.config.CommandTimeout)
	voiceState := infrastructure.NewDiscordVoiceState(deps.Session)

	m.handlers = presentation.NewHandlers(dispatcher, voiceState)

	slog.Info("music_player module initialized",
		"cache_dir", m.config.CacheDir,
		"cache_budget_mb", m.config.CacheBudgetMB,
	)

	return nil
}

// Shutdown closes every live session and waits for their workers.
func (m *MusicPlayerModule) Shutdown() error {
	if m.registry != nil {
		m.registry.Shutdown()
	}
	return nil
}
