package client

import (
	"sync"

	"github.com/google/uuid"
)

// Buffer is the rendered message view: insertion-ordered and deduplicated
// by message id, merged from history fetches and live pushes. The first
// occurrence of an id wins; later deliveries of the same message are
// dropped, which is what reconciles at-most-once transport delivery with
// history refetches after a reconnect.
type Buffer struct {
	mu   sync.Mutex
	seen map[uuid.UUID]struct{}
	msgs []Message
}

func NewBuffer() *Buffer {
	return &Buffer{seen: make(map[uuid.UUID]struct{})}
}

// Add appends a message unless its id is already present. Reports
// whether the message was new.
func (b *Buffer) Add(msg Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.seen[msg.ID]; ok {
		return false
	}
	b.seen[msg.ID] = struct{}{}
	b.msgs = append(b.msgs, msg)
	return true
}

// AddHistory merges a history fetch, preserving its order for ids not
// seen yet.
func (b *Buffer) AddHistory(msgs []Message) {
	for _, m := range msgs {
		b.Add(m)
	}
}

// Messages returns a copy of the view in first-occurrence order.
func (b *Buffer) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.msgs))
	copy(out, b.msgs)
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

// Reset empties the buffer, for conversation switches.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen = make(map[uuid.UUID]struct{})
	b.msgs = nil
}
