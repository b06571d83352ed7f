package infrastructure

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"layeh.com/gopus"

	"github.com/kmlvn/beatrix/internal/modules/music_player/application/ports"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
)

// Matches the original deployment's normalization so tracks from different
// sources play at a comparable volume.
const loudnessFilter = "loudnorm=I=-14:LRA=11:TP=-1.5"

// DiscordVoice implements both the voice connector and the audio player on
// top of discordgo: ffmpeg decodes the locator to raw PCM, which is opus
// encoded frame by frame into the guild's voice connection.
type DiscordVoice struct {
	session *discordgo.Session

	mu    sync.Mutex
	conns map[snowflake.ID]*discordgo.VoiceConnection
}

var (
	_ ports.AudioPlayer    = (*DiscordVoice)(nil)
	_ ports.VoiceConnector = (*DiscordVoice)(nil)
)

// NewDiscordVoice creates the voice transport for a Discord session.
func NewDiscordVoice(session *discordgo.Session) *DiscordVoice {
	return &DiscordVoice{
		session: session,
		conns:   make(map[snowflake.ID]*discordgo.VoiceConnection),
	}
}

// Join connects (or moves) the bot to the given voice channel.
func (d *DiscordVoice) Join(_ context.Context, guildID, channelID snowflake.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if vc, ok := d.conns[guildID]; ok && vc.ChannelID == channelID.String() {
		return nil
	}

	vc, err := d.session.ChannelVoiceJoin(guildID.String(), channelID.String(), false, true)
	if err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}
	d.conns[guildID] = vc
	slog.Debug("joined voice channel", "guild_id", guildID, "channel_id", channelID)
	return nil
}

// Leave disconnects from the guild's voice channel.
func (d *DiscordVoice) Leave(_ context.Context, guildID snowflake.ID) error {
	d.mu.Lock()
	vc, ok := d.conns[guildID]
	delete(d.conns, guildID)
	d.mu.Unlock()

	if !ok {
		return nil
	}
	return vc.Disconnect()
}

// Play decodes the locator with ffmpeg and streams it into the guild's
// voice connection. The returned handle delivers exactly one Done value.
func (d *DiscordVoice) Play(_ context.Context, guildID snowflake.ID, req ports.PlayRequest) (ports.AudioStream, error) {
	d.mu.Lock()
	vc, ok := d.conns[guildID]
	d.mu.Unlock()
	if !ok {
		return nil, errors.New("no voice connection for guild")
	}

	cmd := exec.Command("ffmpeg", ffmpegArgs(req)...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s := &pcmStream{
		cmd:  cmd,
		out:  out,
		vc:   vc,
		done: make(chan error, 1),
		stop: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.pauseMu)
	s.SetVolume(req.Volume)

	go s.pump()
	return s, nil
}

func ffmpegArgs(req ports.PlayRequest) []string {
	var args []string
	if strings.HasPrefix(req.Locator, "http://") || strings.HasPrefix(req.Locator, "https://") {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	if req.Offset > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", req.Offset.Seconds()))
	}
	args = append(args,
		"-nostdin",
		"-i", req.Locator,
		"-vn", "-sn", "-dn",
		"-af", loudnessFilter,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-loglevel", "warning",
		"pipe:1",
	)
	return args
}

// pcmStream is one active audio stream: ffmpeg stdout → opus → OpusSend.
type pcmStream struct {
	cmd *exec.Cmd
	out io.ReadCloser
	vc  *discordgo.VoiceConnection

	done     chan error
	stop     chan struct{}
	stopOnce sync.Once
	finOnce  sync.Once

	pauseMu sync.Mutex
	cond    *sync.Cond
	paused  bool
	stopped bool

	volumeBits atomic.Uint64
}

func (s *pcmStream) Done() <-chan error {
	return s.done
}

func (s *pcmStream) SetVolume(level float64) {
	s.volumeBits.Store(math.Float64bits(level))
}

func (s *pcmStream) Pause() {
	s.pauseMu.Lock()
	s.paused = true
	s.pauseMu.Unlock()
}

func (s *pcmStream) Resume() {
	s.pauseMu.Lock()
	s.paused = false
	s.pauseMu.Unlock()
	s.cond.Broadcast()
}

func (s *pcmStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.pauseMu.Lock()
		s.stopped = true
		s.pauseMu.Unlock()
		s.cond.Broadcast()
	})
}

// waitWhilePaused blocks while paused. Returns false once stopped.
func (s *pcmStream) waitWhilePaused() bool {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	for s.paused && !s.stopped {
		s.cond.Wait()
	}
	return !s.stopped
}

func (s *pcmStream) pump() {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		s.finish(fmt.Errorf("opus encoder: %w", err))
		return
	}

	if err := s.vc.Speaking(true); err != nil {
		slog.Warn("failed to set speaking state", "error", err)
	}
	defer func() {
		if err := s.vc.Speaking(false); err != nil {
			slog.Debug("failed to clear speaking state", "error", err)
		}
	}()

	pcmBuf := make([]byte, frameSize*channels*2)
	intBuf := make([]int16, frameSize*channels)

	for {
		select {
		case <-s.stop:
			s.finish(nil)
			return
		default:
		}

		if !s.waitWhilePaused() {
			s.finish(nil)
			return
		}

		if _, err := io.ReadFull(s.out, pcmBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				s.finish(nil) // natural end of stream
			} else {
				s.finish(fmt.Errorf("pcm read: %w", err))
			}
			return
		}

		volume := math.Float64frombits(s.volumeBits.Load())
		for i := range intBuf {
			sample := int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
			scaled := float64(sample) * volume
			switch {
			case scaled > math.MaxInt16:
				intBuf[i] = math.MaxInt16
			case scaled < math.MinInt16:
				intBuf[i] = math.MinInt16
			default:
				intBuf[i] = int16(scaled)
			}
		}

		opus, err := encoder.Encode(intBuf, frameSize, len(pcmBuf))
		if err != nil {
			s.finish(fmt.Errorf("opus encode: %w", err))
			return
		}

		select {
		case s.vc.OpusSend <- opus:
		case <-s.stop:
			s.finish(nil)
			return
		}
	}
}

// finish tears the pipeline down and delivers the stream's single Done
// value.
func (s *pcmStream) finish(err error) {
	s.finOnce.Do(func() {
		s.out.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.cmd.Wait()
		s.done <- err
	})
}
