package backplane

import (
	"context"
	"sync"
)

const memoryBuffer = 256

// Memory is an in-process Backplane for single-node deployments and tests.
// Several subscribers may attach to the same channel; each receives every
// payload published while it is attached.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed bool
}

// NewMemory constructs an in-process backplane.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]*memorySub)}
}

type memorySub struct {
	parent  *Memory
	channel string
	msgs    chan []byte
	quit    chan struct{}
	once    sync.Once
}

func (s *memorySub) Messages() <-chan []byte { return s.msgs }

func (s *memorySub) Unsubscribe() error {
	s.once.Do(func() {
		close(s.quit)
		s.parent.detach(s)
	})
	return nil
}

// Publish delivers payload to every subscriber of channel. Delivery blocks
// on a subscriber's buffer rather than dropping, unless that subscriber is
// concurrently unsubscribing.
func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*memorySub, len(m.subs[channel]))
	copy(targets, m.subs[channel])
	m.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.msgs <- payload:
		case <-sub.quit:
		}
	}
	return nil
}

// Subscribe attaches to channel.
func (m *Memory) Subscribe(_ context.Context, channel string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	sub := &memorySub{
		parent:  m,
		channel: channel,
		msgs:    make(chan []byte, memoryBuffer),
		quit:    make(chan struct{}),
	}
	m.subs[channel] = append(m.subs[channel], sub)
	return sub, nil
}

// Close detaches every subscriber and rejects further use.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, subs := range m.subs {
		for _, sub := range subs {
			sub.once.Do(func() { close(sub.quit) })
		}
	}
	m.subs = make(map[string][]*memorySub)
	return nil
}

func (m *Memory) detach(sub *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[sub.channel]
	for i, s := range subs {
		if s == sub {
			m.subs[sub.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(m.subs[sub.channel]) == 0 {
		delete(m.subs, sub.channel)
	}
}
