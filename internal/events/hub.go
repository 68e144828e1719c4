package events

import (
	"sync"

	"livechat/pkg/logger"
)

const subscriberBuffer = 64

type subscriber struct {
	ch     chan Event
	closed bool
}

type room struct {
	subs map[*subscriber]struct{}
}

// Hub is the in-process room registry. Subscribers get a buffered channel;
// a subscriber that cannot keep up has events dropped rather than blocking
// the broadcast.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	logger logger.Logger
}

func NewHub(lg logger.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]*room),
		logger: lg,
	}
}

// Subscribe registers a listener on a room. The returned cancel func is
// idempotent and must be called when the session leaves the room.
func (h *Hub) Subscribe(roomID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{subs: make(map[*subscriber]struct{})}
		h.rooms[roomID] = r
	}
	r.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if r, ok := h.rooms[roomID]; ok {
				delete(r.subs, sub)
				if len(r.subs) == 0 {
					delete(h.rooms, roomID)
				}
			}
			sub.closed = true
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (h *Hub) ToRoom(roomID string, ev Event) {
	ev.Room = roomID

	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for sub := range r.subs {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("dropping event for slow subscriber", "room", roomID, "event", ev.Name)
		}
	}
}

func (h *Hub) ToAgents(ev Event) {
	h.ToRoom(AgentQueueRoom, ev)
}
