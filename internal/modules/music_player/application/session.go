package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/kmlvn/beatrix/internal/modules/music_player/application/ports"
	"github.com/kmlvn/beatrix/internal/modules/music_player/domain"
)

const (
	inboxSize      = 32
	resolveQSize   = 16
	voiceOpTimeout = 15 * time.Second
)

// SessionConfig carries the per-session tunables.
type SessionConfig struct {
	IdleTimeout time.Duration
}

// Session is the per-guild playback context: queue, state machine and the
// handle to the active audio stream. All state below the sync fields is
// owned by the worker goroutine and never touched from outside it; commands
// are delivered through the inbox, which makes per-guild serialization
// structural rather than lock-based.
type Session struct {
	guildID  snowflake.ID
	resolver *Resolver
	player   ports.AudioPlayer
	voice    ports.VoiceConnector
	onClose  func(snowflake.ID)
	cfg      SessionConfig

	inbox     chan envelope
	events    chan any
	reset     chan struct{}
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// resolution pipeline: one job at a time, in submission order
	resolveQ chan resolveJob

	// worker-owned state
	queue        domain.Queue
	state        domain.PlaybackState
	current      *domain.Track
	stream       ports.AudioStream
	volume       float64
	channelID    snowflake.ID
	connected    bool
	position     time.Duration
	playingSince time.Time

	// in-flight work bookkeeping
	epoch           uint64
	epochCtx        context.Context
	epochCancel     context.CancelFunc
	promoteGen      uint64
	pendingPromote  *domain.Track
	discardResolves int
}

type envelope struct {
	cmd   Command
	reply chan<- Result
}

type resolveJob struct {
	ctx   context.Context
	epoch uint64
	cmd   Command
	reply chan<- Result
}

type resolveDone struct {
	epoch uint64
	cmd   Command
	track *domain.Track
	err   error
	reply chan<- Result
}

type promoteDone struct {
	gen     uint64
	track   *domain.Track
	locator string
	err     error
}

// NewSession creates a session for one guild. Call Start before dispatching.
func NewSession(
	guildID snowflake.ID,
	resolver *Resolver,
	player ports.AudioPlayer,
	voice ports.VoiceConnector,
	cfg SessionConfig,
	onClose func(snowflake.ID),
) *Session {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	s := &Session{
		guildID:  guildID,
		resolver: resolver,
		player:   player,
		voice:    voice,
		onClose:  onClose,
		cfg:      cfg,
		inbox:    make(chan envelope, inboxSize),
		events:   make(chan any, inboxSize),
		reset:    make(chan struct{}, 1),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		resolveQ: make(chan resolveJob, resolveQSize),
		queue:    domain.NewQueue(),
		state:    domain.StateIdle,
		volume:   1.0,
	}
	s.newEpoch()
	return s
}

// Start launches the session worker and its resolution pipeline.
func (s *Session) Start() {
	go s.run()
	go s.resolveLoop()
}

// Close requests teardown. It does not wait for the worker to exit.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Done is closed when the worker has exited and all resources are released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// GuildID returns the owning guild.
func (s *Session) GuildID() snowflake.ID {
	return s.guildID
}

// submit delivers a command to the worker. The reply channel receives
// exactly one Result unless the session closes first.
func (s *Session) submit(cmd Command, reply chan<- Result, timeout time.Duration) error {
	select {
	case s.inbox <- envelope{cmd: cmd, reply: reply}:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-time.After(timeout):
		return ErrCommandTimeout
	}
}

// forceReset asks the worker to drop everything and return to idle. Used by
// the dispatcher after a command timeout.
func (s *Session) forceReset() {
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

func (s *Session) run() {
	defer close(s.done)

	idle := time.NewTimer(s.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		var streamEnd <-chan error
		if s.stream != nil {
			streamEnd = s.stream.Done()
		}

		select {
		case env := <-s.inbox:
			s.resetTimer(idle)
			s.handleCommand(env.cmd, env.reply)

		case ev := <-s.events:
			s.resetTimer(idle)
			s.handleEvent(ev)

		case err := <-streamEnd:
			s.resetTimer(idle)
			s.onStreamEnd(err)

		case <-s.reset:
			slog.Warn("session force-reset", "guild_id", s.guildID)
			s.stopAll()

		case <-idle.C:
			if s.state == domain.StateIdle {
				slog.Info("session idle timeout, tearing down", "guild_id", s.guildID)
				s.teardown()
				return
			}
			idle.Reset(s.cfg.IdleTimeout)

		case <-s.closing:
			s.teardown()
			return
		}
	}
}

// resolveLoop executes resolution jobs one at a time in submission order, so
// concurrent enqueues for one guild land in the queue in arrival order.
func (s *Session) resolveLoop() {
	for {
		select {
		case job := <-s.resolveQ:
			track, err := s.resolver.Resolve(job.ctx, job.cmd.Reference, job.cmd.Requester)
			ev := resolveDone{epoch: job.epoch, cmd: job.cmd, track: track, err: err, reply: job.reply}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) handleCommand(cmd Command, reply chan<- Result) {
	slog.Debug("session command", "guild_id", s.guildID, "op", cmd.Op, "command_id", cmd.ID)

	switch cmd.Op {
	case OpEnqueue:
		s.handleEnqueue(cmd, reply)
	case OpSkip:
		skipped := s.current
		s.deliver(reply, cmd, skipped, s.handleSkip())
	case OpRemoveByName:
		removed := s.queue.RemoveByTitle(cmd.Title)
		if removed == nil {
			s.deliver(reply, cmd, nil, ErrTrackNotFound)
			return
		}
		s.deliver(reply, cmd, removed, nil)
	case OpStop:
		s.stopAll()
		s.deliver(reply, cmd, nil, nil)
	case OpPause:
		s.deliver(reply, cmd, s.current, s.handlePause())
	case OpResume:
		s.deliver(reply, cmd, s.current, s.handleResume())
	case OpSeek:
		s.deliver(reply, cmd, s.current, s.handleSeek(cmd.Offset))
	case OpSetVolume:
		s.deliver(reply, cmd, s.current, s.handleSetVolume(cmd.Volume))
	case OpSummon:
		s.deliver(reply, cmd, nil, s.handleSummon(cmd.ChannelID))
	case OpDisconnect:
		s.stopAll()
		s.deliver(reply, cmd, nil, nil)
		s.Close()
	case OpNowPlaying:
		if s.current == nil {
			s.deliver(reply, cmd, nil, ErrNotPlaying)
			return
		}
		s.deliver(reply, cmd, s.current, nil)
	case OpQueueList:
		s.deliver(reply, cmd, s.current, nil)
	default:
		s.deliver(reply, cmd, nil, ErrSessionClosed)
	}
}

func (s *Session) handleEvent(ev any) {
	switch e := ev.(type) {
	case resolveDone:
		s.onResolveDone(e)
	case promoteDone:
		s.onPromoteDone(e)
	}
}

func (s *Session) handleEnqueue(cmd Command, reply chan<- Result) {
	if !s.connected {
		if cmd.ChannelID == 0 {
			s.deliver(reply, cmd, nil, ErrUserNotInVoice)
			return
		}
		if err := s.join(cmd.ChannelID); err != nil {
			s.deliver(reply, cmd, nil, err)
			return
		}
	}

	if s.state == domain.StateIdle {
		s.setState(domain.StateResolving)
	}

	job := resolveJob{ctx: s.epochCtx, epoch: s.epoch, cmd: cmd, reply: reply}
	select {
	case s.resolveQ <- job:
	default:
		// The pipeline resolves strictly in arrival order; resolving out of
		// band would break that, so a saturated queue rejects instead.
		s.deliver(reply, cmd, nil, ErrResolverBusy)
	}
}

func (s *Session) onResolveDone(e resolveDone) {
	if e.epoch != s.epoch {
		s.deliver(e.reply, e.cmd, nil, ErrResolutionDiscarded)
		return
	}
	if s.discardResolves > 0 {
		s.discardResolves--
		s.deliver(e.reply, e.cmd, nil, ErrResolutionDiscarded)
		return
	}

	if e.err != nil {
		slog.Warn("resolution failed", "guild_id", s.guildID, "reference", e.cmd.Reference, "error", e.err)
		if s.state == domain.StateResolving && s.pendingPromote == nil {
			// Nothing else pending behind this resolution.
			s.setState(domain.StateError)
			s.advance()
		}
		s.deliver(e.reply, e.cmd, nil, e.err)
		return
	}

	s.queue.Enqueue(e.track)
	slog.Info("track queued",
		"guild_id", s.guildID,
		"title", e.track.Title,
		"queue_len", s.queue.Len(),
	)

	if s.current == nil && s.pendingPromote == nil {
		s.advance()
	}
	s.deliver(e.reply, e.cmd, e.track, nil)
}

// handleSkip finishes the current track, or discards an in-flight
// resolution, and advances to the next queued item.
func (s *Session) handleSkip() error {
	switch {
	case s.state.IsActive():
		s.setState(domain.StateFinished)
		s.dropStream()
		// Same tail as natural end of stream: the skipped track is no
		// longer current while the next one is being promoted.
		s.current = nil
		s.position = 0
		s.advance()
		return nil

	case s.state == domain.StateResolving:
		if s.pendingPromote != nil {
			// Discard the item being promoted and move on.
			s.promoteGen++
			s.pendingPromote = nil
		} else {
			// An enqueue resolution is in flight; its result must not play.
			s.discardResolves++
		}
		s.setState(domain.StateFinished)
		s.advance()
		return nil

	default:
		if s.queue.IsEmpty() {
			return ErrNotPlaying
		}
		s.advance()
		return nil
	}
}

func (s *Session) handlePause() error {
	switch s.state {
	case domain.StatePaused:
		return ErrAlreadyPaused
	case domain.StatePlaying:
		s.stream.Pause()
		s.position += time.Since(s.playingSince)
		s.setState(domain.StatePaused)
		return nil
	default:
		return ErrNotPlaying
	}
}

func (s *Session) handleResume() error {
	if s.current == nil {
		return ErrNotPlaying
	}
	if s.state != domain.StatePaused {
		return ErrNotPaused
	}
	s.stream.Resume()
	s.playingSince = time.Now()
	s.setState(domain.StatePlaying)
	return nil
}

func (s *Session) handleSeek(offset time.Duration) error {
	if s.current == nil || s.stream == nil {
		return ErrNotPlaying
	}
	if s.current.IsLive {
		return ErrSeekUnavailable
	}
	if s.current.HasKnownDuration() && offset > s.current.Duration {
		return ErrSeekOutOfRange
	}

	wasPaused := s.state == domain.StatePaused
	s.setState(domain.StateSeeking)

	s.dropStream()
	ctx, cancel := context.WithTimeout(context.Background(), voiceOpTimeout)
	defer cancel()
	stream, err := s.player.Play(ctx, s.guildID, ports.PlayRequest{
		Locator: s.current.Locator,
		Offset:  offset,
		Volume:  s.volume,
	})
	if err != nil {
		s.setState(domain.StateError)
		return err
	}

	s.stream = stream
	s.position = offset
	s.playingSince = time.Now()
	if wasPaused {
		stream.Pause()
		s.setState(domain.StatePaused)
	} else {
		s.setState(domain.StatePlaying)
	}
	return nil
}

func (s *Session) handleSetVolume(level float64) error {
	if !s.connected {
		return ErrNotConnected
	}
	s.volume = level
	if s.stream != nil {
		s.stream.SetVolume(level)
	}
	return nil
}

func (s *Session) handleSummon(channelID snowflake.ID) error {
	return s.join(channelID)
}

func (s *Session) join(channelID snowflake.ID) error {
	ctx, cancel := context.WithTimeout(context.Background(), voiceOpTimeout)
	defer cancel()
	if err := s.voice.Join(ctx, s.guildID, channelID); err != nil {
		return err
	}
	s.connected = true
	s.channelID = channelID
	return nil
}

// advance promotes the next queued track, or goes idle when the queue is
// empty. Skip and natural end of stream both funnel through here.
func (s *Session) advance() {
	next, ok := s.queue.Dequeue()
	if !ok {
		s.enterIdle()
		return
	}
	s.promote(next)
}

// promote re-validates the track's media (the cache may have evicted it
// since enqueue) off the worker loop, then starts the stream.
func (s *Session) promote(track *domain.Track) {
	s.setState(domain.StateResolving)
	s.pendingPromote = track
	s.promoteGen++
	gen := s.promoteGen
	ctx := s.epochCtx

	go func() {
		locator, err := s.resolver.EnsureAvailable(ctx, track)
		select {
		case s.events <- promoteDone{gen: gen, track: track, locator: locator, err: err}:
		case <-s.done:
		}
	}()
}

func (s *Session) onPromoteDone(e promoteDone) {
	if e.gen != s.promoteGen || s.pendingPromote != e.track {
		return // superseded by skip, stop or disconnect
	}
	s.pendingPromote = nil

	if e.err != nil {
		// Recover locally: report this track's failure and continue with the
		// rest of the queue.
		slog.Warn("track unavailable, advancing",
			"guild_id", s.guildID,
			"title", e.track.Title,
			"error", e.err,
		)
		s.setState(domain.StateError)
		s.advance()
		return
	}

	if err := s.startStream(e.track, e.locator); err != nil {
		slog.Warn("failed to start stream, advancing",
			"guild_id", s.guildID,
			"title", e.track.Title,
			"error", err,
		)
		s.setState(domain.StateError)
		s.advance()
	}
}

func (s *Session) startStream(track *domain.Track, locator string) error {
	ctx, cancel := context.WithTimeout(context.Background(), voiceOpTimeout)
	defer cancel()
	stream, err := s.player.Play(ctx, s.guildID, ports.PlayRequest{
		Locator: locator,
		Offset:  0,
		Volume:  s.volume,
	})
	if err != nil {
		return err
	}

	s.stream = stream
	s.current = track
	s.position = 0
	s.playingSince = time.Now()
	s.setState(domain.StatePlaying)
	slog.Info("now playing", "guild_id", s.guildID, "title", track.Title, "duration", track.FormattedDuration())
	return nil
}

func (s *Session) onStreamEnd(err error) {
	if err != nil {
		slog.Warn("stream ended with error", "guild_id", s.guildID, "error", err)
		s.setState(domain.StateError)
	} else {
		s.setState(domain.StateFinished)
	}
	s.stream = nil
	s.current = nil
	s.position = 0
	s.advance()
}

// stopAll cancels all in-flight work, clears the queue and returns to idle.
func (s *Session) stopAll() {
	s.newEpoch()
	s.promoteGen++
	s.pendingPromote = nil
	s.dropStream()
	s.queue.Clear()
	s.enterIdle()
}

func (s *Session) enterIdle() {
	s.current = nil
	s.position = 0
	s.setState(domain.StateIdle)
}

// dropStream detaches and stops the current stream. Its Done value is left
// in the stream's buffer; the worker no longer selects on it.
func (s *Session) dropStream() {
	if s.stream == nil {
		return
	}
	stream := s.stream
	s.stream = nil
	stream.Stop()
}

func (s *Session) teardown() {
	s.stopAll()
	if s.connected {
		ctx, cancel := context.WithTimeout(context.Background(), voiceOpTimeout)
		defer cancel()
		if err := s.voice.Leave(ctx, s.guildID); err != nil {
			slog.Warn("failed to leave voice channel", "guild_id", s.guildID, "error", err)
		}
		s.connected = false
	}
	if s.onClose != nil {
		s.onClose(s.guildID)
	}
	s.Close()
}

// newEpoch invalidates every in-flight resolution and download for this
// session. Their completions are discarded on arrival.
func (s *Session) newEpoch() {
	if s.epochCancel != nil {
		s.epochCancel()
	}
	s.epoch++
	s.epochCtx, s.epochCancel = context.WithCancel(context.Background())
}

func (s *Session) setState(next domain.PlaybackState) {
	if s.state == next {
		return
	}
	if !s.state.CanTransitionTo(next) {
		slog.Warn("illegal state transition",
			"guild_id", s.guildID,
			"from", s.state,
			"to", next,
		)
	}
	slog.Debug("state transition", "guild_id", s.guildID, "from", s.state, "to", next)
	s.state = next
}

func (s *Session) currentPosition() time.Duration {
	if s.state == domain.StatePlaying {
		return s.position + time.Since(s.playingSince)
	}
	return s.position
}

func (s *Session) deliver(reply chan<- Result, cmd Command, track *domain.Track, err error) {
	if reply == nil {
		return
	}
	res := Result{
		CommandID: cmd.ID,
		State:     s.state,
		Track:     track,
		Queue:     s.queue.List(),
		Position:  s.currentPosition(),
		Volume:    s.volume,
		Err:       err,
	}
	select {
	case reply <- res:
	default:
		slog.Warn("dropped command result", "guild_id", s.guildID, "command_id", cmd.ID)
	}
}

func (s *Session) resetTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(s.cfg.IdleTimeout)
}
