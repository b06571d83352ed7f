package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Dispatcher routes validated commands to guild sessions. Operations for one
// guild execute in arrival order (the session worker consumes its inbox
// sequentially); different guilds proceed fully in parallel.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
}

// NewDispatcher creates a Dispatcher over the given registry. timeout bounds
// how long one command may wait on a session, end to end.
func NewDispatcher(registry *Registry, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Dispatcher{registry: registry, timeout: timeout}
}

// Dispatch validates cmd and executes it on the guild's session, blocking
// until the session produces a Result or the timeout elapses. On timeout the
// session is force-reset to idle and the Result carries ErrCommandTimeout.
func (d *Dispatcher) Dispatch(ctx context.Context, guildID snowflake.ID, cmd Command) Result {
	if err := cmd.Validate(); err != nil {
		return Result{CommandID: cmd.ID, Err: err}
	}

	// Only enqueue and summon may create a session; every other operation
	// addresses playback that must already exist.
	if cmd.Op != OpEnqueue && cmd.Op != OpSummon {
		if _, ok := d.registry.Get(guildID); !ok {
			return Result{CommandID: cmd.ID, Err: ErrNotConnected}
		}
	}

	res, err := d.dispatch(ctx, guildID, cmd)
	if err == nil {
		return res
	}
	if errors.Is(err, ErrSessionClosed) {
		// The session tore down between lookup and submit; retry once on a
		// fresh one.
		res, err = d.dispatch(ctx, guildID, cmd)
		if err == nil {
			return res
		}
	}
	return Result{CommandID: cmd.ID, Err: err}
}

func (d *Dispatcher) dispatch(ctx context.Context, guildID snowflake.ID, cmd Command) (Result, error) {
	sess := d.registry.GetOrCreate(guildID)
	reply := make(chan Result, 1)

	if err := sess.submit(cmd, reply, d.timeout); err != nil {
		if errors.Is(err, ErrCommandTimeout) {
			d.timedOut(sess, cmd)
		}
		return Result{}, err
	}

	select {
	case res := <-reply:
		return res, nil
	case <-sess.Done():
		return Result{}, ErrSessionClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(d.timeout):
		d.timedOut(sess, cmd)
		return Result{}, ErrCommandTimeout
	}
}

func (d *Dispatcher) timedOut(sess *Session, cmd Command) {
	slog.Error("command timed out, force-resetting session",
		"guild_id", sess.GuildID(),
		"op", cmd.Op,
		"command_id", cmd.ID,
	)
	sess.forceReset()
}
