package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversPerStudent(t *testing.T) {
	hub := NewHub()
	a, cancelA := hub.Subscribe("a")
	defer cancelA()
	b, cancelB := hub.Subscribe("b")
	defer cancelB()

	hub.Publish("a", StreamEvent{Event: StreamTick})

	require.Len(t, a, 1)
	assert.Equal(t, StreamTick, (<-a).Event)
	assert.Len(t, b, 0)
}

func TestHubDropsOldestWhenFull(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("a")
	defer cancel()

	for i := 0; i < subscriberBuffer+3; i++ {
		remaining := i
		hub.Publish("a", StreamEvent{Event: StreamTick, RemainingSeconds: &remaining})
	}

	require.Len(t, ch, subscriberBuffer)
	first := <-ch
	assert.Equal(t, 3, *first.RemainingSeconds)
}

func TestHubCancelClosesAndForgets(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("a")
	assert.Equal(t, 1, hub.Subscribers("a"))

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, hub.Subscribers("a"))

	hub.Publish("a", StreamEvent{Event: StreamTick})
}
