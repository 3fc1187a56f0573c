package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/backplane"
	"github.com/roomcast/roomcast/internal/proto"
)

const channelPrefix = "room.msg."

// ChannelFor returns the backplane channel carrying one room's messages.
func ChannelFor(room string) string {
	return channelPrefix + room
}

// Bridge connects one room's backplane channel to the local connection
// registry. One Bridge exists per (room, process) pair, alive exactly while
// the room has at least one locally attached connection.
//
// Local publishes go out on the same channel the Bridge consumes, so the
// publishing process receives its own messages back through the one fanout
// path shared with remote deliveries.
type Bridge struct {
	room string
	reg  *Registry
	bp   backplane.Backplane
	sub  backplane.Subscription
	log  zerolog.Logger

	// gates buffers fanout for connections whose history replay has not
	// completed yet, keyed by connection ID.
	gateMu sync.Mutex
	gates  map[string][]*Event

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartBridge subscribes to the room's channel and starts the fanout loop.
func StartBridge(ctx context.Context, room string, bp backplane.Backplane, reg *Registry, logger zerolog.Logger) (*Bridge, error) {
	sub, err := bp.Subscribe(ctx, ChannelFor(room))
	if err != nil {
		return nil, coreError(err, ErrCodeBackplaneFailure, "subscribe room channel: "+err.Error())
	}
	b := &Bridge{
		room:  room,
		reg:   reg,
		bp:    bp,
		sub:   sub,
		log:   logger.With().Str("room", room).Logger(),
		gates: make(map[string][]*Event),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go b.run()
	return b, nil
}

// Publish forwards a locally submitted message onto the room's channel.
func (b *Bridge) Publish(ctx context.Context, msg *Message) error {
	payload, err := proto.EncodeWire(msg.ID, msg.Room, msg.Sender, msg.Content, msg.CreatedAt)
	if err != nil {
		return coreError(err, ErrCodeMalformedMessage, "encode message: "+err.Error())
	}
	if err := b.bp.Publish(ctx, ChannelFor(b.room), payload); err != nil {
		return coreError(err, ErrCodeBackplaneFailure, "publish message: "+err.Error())
	}
	return nil
}

// OpenGate starts buffering fanout for conn until ReleaseGate. Callers open
// the gate before registering conn so no message can slip past ungated.
func (b *Bridge) OpenGate(conn Conn) {
	b.gateMu.Lock()
	defer b.gateMu.Unlock()
	if _, ok := b.gates[conn.ID()]; !ok {
		b.gates[conn.ID()] = nil
	}
}

// ReleaseGate delivers the events buffered for conn, in arrival order, and
// switches it to live fanout. The gate lock is held across the flush so a
// concurrent fanout pass cannot interleave with the buffered tail.
func (b *Bridge) ReleaseGate(conn Conn) []*Event {
	b.gateMu.Lock()
	defer b.gateMu.Unlock()
	buffered := b.gates[conn.ID()]
	delete(b.gates, conn.ID())
	for _, ev := range buffered {
		if err := conn.Deliver(ev); err != nil {
			b.log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("buffered delivery failed")
			b.reg.Remove(b.room, conn)
			break
		}
	}
	return buffered
}

// DiscardGate drops conn's buffer without delivering, for aborted joins.
func (b *Bridge) DiscardGate(conn Conn) {
	b.gateMu.Lock()
	defer b.gateMu.Unlock()
	delete(b.gates, conn.ID())
}

// Stop unsubscribes from the channel and waits for the fanout loop to
// finish its in-flight pass. It is idempotent.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if err := b.sub.Unsubscribe(); err != nil {
			b.log.Warn().Err(err).Msg("unsubscribe room channel")
		}
		close(b.quit)
	})
	<-b.done
}

func (b *Bridge) run() {
	defer close(b.done)
	for {
		select {
		case payload := <-b.sub.Messages():
			b.dispatch(payload)
		case <-b.quit:
			return
		}
	}
}

func (b *Bridge) dispatch(payload []byte) {
	wm, err := proto.DecodeWire(payload)
	if err != nil {
		b.log.Warn().Err(err).Msg("drop undecodable backplane payload")
		return
	}
	ev := &Event{
		Kind: EventRoomMessage,
		Room: b.room,
		Message: Message{
			ID:        wm.ID,
			Room:      wm.Room,
			Sender:    wm.Sender,
			Content:   wm.Content,
			CreatedAt: wm.Time(),
		},
	}
	b.fanout(ev)
}

// fanout delivers ev to every locally attached connection. A failed
// delivery removes that one connection and never aborts the pass.
func (b *Bridge) fanout(ev *Event) {
	for _, conn := range b.reg.Snapshot(b.room) {
		b.gateMu.Lock()
		if buf, gated := b.gates[conn.ID()]; gated {
			b.gates[conn.ID()] = append(buf, ev)
			b.gateMu.Unlock()
			continue
		}
		b.gateMu.Unlock()

		if err := conn.Deliver(ev); err != nil {
			b.log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("delivery failed, removing connection")
			b.reg.Remove(b.room, conn)
		}
	}
}
