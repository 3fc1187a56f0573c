package http

import (
	"errors"
	"sync"

	"github.com/roomcast/roomcast/internal/core"
)

var errQueueFull = errors.New("event queue full")

// wsClient adapts one WebSocket connection to core.Conn. Events are
// enqueued without blocking; a full queue marks the client a slow consumer
// and fails the delivery, which gets it removed from the room registry.
type wsClient struct {
	id     string
	events chan *core.Event

	mu   sync.RWMutex
	user string
}

func newWSClient(id string, buffer int) *wsClient {
	if buffer <= 0 {
		buffer = 64
	}
	return &wsClient{id: id, events: make(chan *core.Event, buffer)}
}

func (c *wsClient) ID() string { return c.id }

func (c *wsClient) User() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *wsClient) setUser(user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = user
}

func (c *wsClient) Deliver(ev *core.Event) error {
	select {
	case c.events <- ev:
		return nil
	default:
		return errQueueFull
	}
}
