package sse

import (
	"io"
	"sync"

	"github.com/gin-gonic/gin"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data interface{}
}

// Manager fans events out to SSE subscribers. Topics are ingestion run ids.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

func NewManager() *Manager {
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe registers a listener on topic. The returned func unsubscribes.
func (m *Manager) Subscribe(topic string) (chan Event, func()) {
	ch := make(chan Event, 16)

	m.mu.Lock()
	if m.subscribers[topic] == nil {
		m.subscribers[topic] = make(map[chan Event]struct{})
	}
	m.subscribers[topic][ch] = struct{}{}
	m.mu.Unlock()

	unsubscribe := func() {
		m.mu.Lock()
		if subs, ok := m.subscribers[topic]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(m.subscribers, topic)
			}
		}
		m.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish sends an event to every subscriber of topic. Slow subscribers drop
// events rather than blocking the publisher.
func (m *Manager) Publish(topic, name string, data interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for ch := range m.subscribers[topic] {
		select {
		case ch <- Event{Name: name, Data: data}:
		default:
		}
	}
}

// ServeHTTP streams topic events to the client until it disconnects.
func (m *Manager) ServeHTTP(c *gin.Context, topic string) {
	c.Writer.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := m.Subscribe(topic)
	defer unsubscribe()

	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case event := <-ch:
			c.SSEvent(event.Name, event.Data)
			return true
		}
	})
}
