package backplane

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const natsBuffer = 256

// NATS is a Backplane backed by a NATS server. Each room channel maps to
// one NATS subject, so every gateway process subscribed to a room receives
// every payload published on it, including its own.
type NATS struct {
	nc *nats.Conn
}

// ConnectNATS dials the NATS server. The connection reconnects forever on
// network loss; publishes during a reconnect window are buffered by the
// client.
func ConnectNATS(url, name string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{nc: nc}, nil
}

type natsSub struct {
	sub  *nats.Subscription
	raw  chan *nats.Msg
	msgs chan []byte
	quit chan struct{}
	once sync.Once
}

func (s *natsSub) Messages() <-chan []byte { return s.msgs }

func (s *natsSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Unsubscribe()
		close(s.quit)
	})
	return err
}

// Publish sends payload on the channel's subject.
func (n *NATS) Publish(_ context.Context, channel string, payload []byte) error {
	if err := n.nc.Publish(channel, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe attaches to the channel's subject. A pump goroutine copies
// payloads off the NATS delivery channel; it exits on Unsubscribe.
func (n *NATS) Subscribe(_ context.Context, channel string) (Subscription, error) {
	raw := make(chan *nats.Msg, natsBuffer)
	sub, err := n.nc.ChanSubscribe(channel, raw)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", channel, err)
	}
	s := &natsSub{
		sub:  sub,
		raw:  raw,
		msgs: make(chan []byte, natsBuffer),
		quit: make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

func (s *natsSub) pump() {
	for {
		select {
		case m := <-s.raw:
			select {
			case s.msgs <- m.Data:
			case <-s.quit:
				return
			}
		case <-s.quit:
			return
		}
	}
}

// Close drains the connection so in-flight deliveries complete.
func (n *NATS) Close() error {
	return n.nc.Drain()
}
