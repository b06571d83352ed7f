package application

import (
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	resolver := newTestResolver(newMockExtractor(), newMockCache(), 1)
	reg := NewRegistry(resolver, &mockPlayer{}, &mockVoice{}, SessionConfig{IdleTimeout: time.Hour})
	t.Cleanup(reg.Shutdown)
	return reg
}

func TestRegistry_GetOrCreateReturnsSameSession(t *testing.T) {
	reg := newTestRegistry(t)

	first := reg.GetOrCreate(testGuildID)
	second := reg.GetOrCreate(testGuildID)

	if first != second {
		t.Error("expected one session per guild")
	}
	if reg.Count() != 1 {
		t.Errorf("expected 1 session, got %d", reg.Count())
	}
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	reg := newTestRegistry(t)

	const goroutines = 16
	var wg sync.WaitGroup
	sessions := make([]*Session, goroutines)

	for n := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessions[n] = reg.GetOrCreate(testGuildID)
		}()
	}
	wg.Wait()

	for n := 1; n < goroutines; n++ {
		if sessions[n] != sessions[0] {
			t.Fatal("concurrent lookups must observe the same session instance")
		}
	}
	if reg.Count() != 1 {
		t.Errorf("expected 1 session, got %d", reg.Count())
	}
}

func TestRegistry_SessionsPerGuildAreIndependent(t *testing.T) {
	reg := newTestRegistry(t)

	a := reg.GetOrCreate(snowflake.ID(1))
	b := reg.GetOrCreate(snowflake.ID(2))

	if a == b {
		t.Error("expected distinct sessions for distinct guilds")
	}
	if reg.Count() != 2 {
		t.Errorf("expected 2 sessions, got %d", reg.Count())
	}
}

func TestRegistry_GetDoesNotCreate(t *testing.T) {
	reg := newTestRegistry(t)

	if _, ok := reg.Get(testGuildID); ok {
		t.Error("expected no session before GetOrCreate")
	}
	if reg.Count() != 0 {
		t.Errorf("expected 0 sessions, got %d", reg.Count())
	}
}

func TestRegistry_SessionCloseRemovesItself(t *testing.T) {
	reg := newTestRegistry(t)

	sess := reg.GetOrCreate(testGuildID)
	reply := make(chan Result, 1)
	if err := sess.submit(NewCommand(OpDisconnect, testRequester()), reply, time.Second); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-reply

	waitFor(t, "session removal", func() bool { return reg.Count() == 0 })
}

func TestRegistry_Shutdown(t *testing.T) {
	reg := newTestRegistry(t)

	a := reg.GetOrCreate(snowflake.ID(1))
	b := reg.GetOrCreate(snowflake.ID(2))

	reg.Shutdown()

	select {
	case <-a.Done():
	default:
		t.Error("expected first session to be closed")
	}
	select {
	case <-b.Done():
	default:
		t.Error("expected second session to be closed")
	}
	if reg.Count() != 0 {
		t.Errorf("expected 0 sessions after shutdown, got %d", reg.Count())
	}
}
