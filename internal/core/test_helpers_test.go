package core

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// testConn is an in-memory core.Conn for exercising fanout and joins.
type testConn struct {
	id   string
	user string

	mu     sync.Mutex
	fail   bool
	events chan *Event
}

func newTestConn(id, user string) *testConn {
	return &testConn{id: id, user: user, events: make(chan *Event, 64)}
}

func (c *testConn) ID() string   { return c.id }
func (c *testConn) User() string { return c.user }

func (c *testConn) Deliver(ev *Event) error {
	c.mu.Lock()
	fail := c.fail
	c.mu.Unlock()
	if fail {
		return errors.New("delivery broken")
	}
	select {
	case c.events <- ev:
		return nil
	default:
		return errors.New("event queue full")
	}
}

func (c *testConn) breakDelivery() {
	c.mu.Lock()
	c.fail = true
	c.mu.Unlock()
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, wait time.Duration) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(wait):
	}
}
