package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"tastemap/api/internal/events"
)

// AdminRoom is the broadcast group every authenticated admin channel joins.
const AdminRoom = "admin_room"

// Channel is the outbound handle for one connected client. TrySend must not
// block: implementations enqueue the event and report false when the client
// cannot keep up or has gone away.
type Channel interface {
	TrySend(evt events.Event) bool
}

// Hub groups live channels by name and fans events out to every member of a
// group. Delivery is best-effort: a member that refuses an event is removed,
// publishing to an empty or unknown group is a no-op, and no failure ever
// reaches the caller.
type Hub struct {
	log zerolog.Logger

	mu     sync.Mutex
	groups map[string]*group
}

type group struct {
	mu      sync.Mutex
	members map[Channel]struct{}
}

func New(log zerolog.Logger) *Hub {
	return &Hub{
		log:    log,
		groups: make(map[string]*group),
	}
}

// Join holds the hub lock across the insert. Releasing it between the group
// lookup and the insert would let a concurrent Leave delete a just-emptied
// group and strand the new member in a struct Publish can no longer find.
func (h *Hub) Join(name string, ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.groups[name]
	if !ok {
		g = &group{members: make(map[Channel]struct{})}
		h.groups[name] = g
	}

	g.mu.Lock()
	g.members[ch] = struct{}{}
	g.mu.Unlock()
}

func (h *Hub) Leave(name string, ch Channel) {
	h.mu.Lock()
	g, ok := h.groups[name]
	h.mu.Unlock()
	if !ok {
		return
	}

	g.mu.Lock()
	delete(g.members, ch)
	empty := len(g.members) == 0
	g.mu.Unlock()

	if empty {
		h.mu.Lock()
		// Re-check under the hub lock: a concurrent Join may have landed.
		g.mu.Lock()
		if len(g.members) == 0 {
			delete(h.groups, name)
		}
		g.mu.Unlock()
		h.mu.Unlock()
	}
}

// Publish delivers evt to every current member of the group. Members are
// snapshotted under the group lock and sends happen outside it, so join and
// leave are never blocked by delivery and a publisher never iterates a
// mutating set.
func (h *Hub) Publish(name string, evt events.Event) {
	h.mu.Lock()
	g, ok := h.groups[name]
	h.mu.Unlock()
	if !ok {
		return
	}

	g.mu.Lock()
	members := make([]Channel, 0, len(g.members))
	for ch := range g.members {
		members = append(members, ch)
	}
	g.mu.Unlock()

	for _, ch := range members {
		if !ch.TrySend(evt) {
			h.log.Warn().
				Str("group", name).
				Str("event", evt.Type).
				Msg("dropping unresponsive channel")
			h.Leave(name, ch)
		}
	}
}

// MemberCount reports current group membership.
func (h *Hub) MemberCount(name string) int {
	h.mu.Lock()
	g, ok := h.groups[name]
	h.mu.Unlock()
	if !ok {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}
