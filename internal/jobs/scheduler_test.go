package jobs

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"tastemap/api/internal/events"
	"tastemap/api/internal/hub"
)

type countingChannel struct {
	mu     sync.Mutex
	counts []int
}

func (c *countingChannel) TrySend(evt events.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if payload, ok := evt.Payload.(events.PendingCountPayload); ok {
		c.counts = append(c.counts, payload.Count)
	}
	return true
}

func (c *countingChannel) received() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.counts))
	copy(out, c.counts)
	return out
}

type staticCounter struct {
	count int
}

func (s staticCounter) PendingCount(context.Context) (int, error) {
	return s.count, nil
}

func TestRebroadcastSkipsEmptyRoom(t *testing.T) {
	notify := hub.New(zerolog.Nop())
	s := NewScheduler(nil, notify, staticCounter{count: 7}, zerolog.Nop())

	// Nothing to assert beyond "does not panic or block": no members exist.
	s.rebroadcastPendingCount()
}

func TestRebroadcastPushesCountToAdmins(t *testing.T) {
	notify := hub.New(zerolog.Nop())
	ch := &countingChannel{}
	notify.Join(hub.AdminRoom, ch)

	s := NewScheduler(nil, notify, staticCounter{count: 7}, zerolog.Nop())
	s.rebroadcastPendingCount()

	got := ch.received()
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("received counts %v, want [7]", got)
	}
}
