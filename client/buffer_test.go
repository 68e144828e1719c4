package client

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func Test_BufferDeduplicates(t *testing.T) {
	b := NewBuffer()

	m1 := Message{ID: uuid.New(), Body: "first"}
	m2 := Message{ID: uuid.New(), Body: "second"}

	assert.True(t, b.Add(m1))
	assert.True(t, b.Add(m2))
	assert.False(t, b.Add(m1), "same id must be dropped")

	msgs := b.Messages()
	assert.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Body)
	assert.Equal(t, "second", msgs[1].Body)
}

func Test_BufferHistoryAndPushMerge(t *testing.T) {
	b := NewBuffer()

	m1 := Message{ID: uuid.New(), Body: "from history"}
	m2 := Message{ID: uuid.New(), Body: "pushed live"}

	// The push lands first, then a reconnect refetches history containing
	// the same message. The view must hold each exactly once.
	assert.True(t, b.Add(m2))
	b.AddHistory([]Message{m1, m2})

	msgs := b.Messages()
	assert.Len(t, msgs, 2)
	assert.Equal(t, m2.ID, msgs[0].ID)
	assert.Equal(t, m1.ID, msgs[1].ID)
}

func Test_BufferFirstOccurrenceWins(t *testing.T) {
	b := NewBuffer()

	id := uuid.New()
	b.Add(Message{ID: id, Body: "original"})
	b.Add(Message{ID: id, Body: "duplicate with different body"})

	msgs := b.Messages()
	assert.Len(t, msgs, 1)
	assert.Equal(t, "original", msgs[0].Body)
}

func Test_BufferReset(t *testing.T) {
	b := NewBuffer()

	id := uuid.New()
	b.Add(Message{ID: id})
	b.Reset()

	assert.Zero(t, b.Len())
	// Reset clears the seen set too, so the id is accepted again.
	assert.True(t, b.Add(Message{ID: id}))
}

func Test_BufferMessagesIsACopy(t *testing.T) {
	b := NewBuffer()
	b.Add(Message{ID: uuid.New(), Body: "original"})

	msgs := b.Messages()
	msgs[0].Body = "mutated"

	assert.Equal(t, "original", b.Messages()[0].Body)
}
