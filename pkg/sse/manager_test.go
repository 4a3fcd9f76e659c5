package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	m := NewManager()

	ch, unsubscribe := m.Subscribe("run-1")
	defer unsubscribe()

	m.Publish("run-1", "progress", map[string]int{"stored": 3})

	select {
	case event := <-ch:
		assert.Equal(t, "progress", event.Name)
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestPublishScopedToTopic(t *testing.T) {
	m := NewManager()

	ch, unsubscribe := m.Subscribe("run-1")
	defer unsubscribe()

	m.Publish("run-2", "progress", nil)

	select {
	case <-ch:
		t.Fatal("event leaked across topics")
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := NewManager()

	ch, unsubscribe := m.Subscribe("run-1")
	unsubscribe()

	m.Publish("run-1", "progress", nil)

	select {
	case <-ch:
		t.Fatal("event delivered after unsubscribe")
	default:
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	m := NewManager()

	ch, unsubscribe := m.Subscribe("run-1")
	defer unsubscribe()

	// Overfill the buffer: extra events are dropped, Publish never blocks.
	for i := 0; i < 100; i++ {
		m.Publish("run-1", "progress", i)
	}

	require.Equal(t, 16, len(ch))
}
