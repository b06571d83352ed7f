package application

import (
	"log/slog"
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"github.com/kmlvn/beatrix/internal/modules/music_player/application/ports"
)

// Registry is the process-wide map from guild ID to its Session. It is the
// exclusive owner of session lifecycles: sessions are created lazily on
// first use and removed when they disconnect or idle out. Concurrent
// lookups for one guild always observe the same instance.
type Registry struct {
	mu       sync.RWMutex
	sessions map[snowflake.ID]*Session

	resolver *Resolver
	player   ports.AudioPlayer
	voice    ports.VoiceConnector
	cfg      SessionConfig
}

// NewRegistry creates a Registry whose sessions share the given resolver
// and transport.
func NewRegistry(resolver *Resolver, player ports.AudioPlayer, voice ports.VoiceConnector, cfg SessionConfig) *Registry {
	return &Registry{
		sessions: make(map[snowflake.ID]*Session),
		resolver: resolver,
		player:   player,
		voice:    voice,
		cfg:      cfg,
	}
}

// GetOrCreate returns the guild's session, creating and starting one if
// absent.
func (r *Registry) GetOrCreate(guildID snowflake.ID) *Session {
	r.mu.RLock()
	sess, ok := r.sessions[guildID]
	r.mu.RUnlock()
	if ok {
		return sess
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[guildID]; ok {
		return sess
	}

	sess = NewSession(guildID, r.resolver, r.player, r.voice, r.cfg, r.Remove)
	r.sessions[guildID] = sess
	sess.Start()
	slog.Debug("session created", "guild_id", guildID)
	return sess
}

// Get returns the guild's session without creating one.
func (r *Registry) Get(guildID snowflake.ID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[guildID]
	return sess, ok
}

// Remove drops the guild's session from the registry. Sessions call this
// through their onClose hook when they tear down.
func (r *Registry) Remove(guildID snowflake.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[guildID]; ok {
		delete(r.sessions, guildID)
		slog.Debug("session removed", "guild_id", guildID)
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown closes every session and waits for the workers to exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[snowflake.ID]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	for _, sess := range sessions {
		<-sess.Done()
	}
}
