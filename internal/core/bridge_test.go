package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/backplane"
)

func newTestBridge(t *testing.T, room string) (*Bridge, *Registry, *backplane.Memory) {
	t.Helper()

	bp := backplane.NewMemory()
	reg := NewRegistry()
	bridge, err := StartBridge(context.Background(), room, bp, reg, zerolog.Nop())
	if err != nil {
		t.Fatalf("start bridge: %v", err)
	}
	t.Cleanup(bridge.Stop)
	return bridge, reg, bp
}

func TestBridgeFanoutDeliversToAllConnections(t *testing.T) {
	bridge, reg, _ := newTestBridge(t, "general")

	a := newTestConn("a", "alice")
	b := newTestConn("b", "bob")
	reg.Add("general", a)
	reg.Add("general", b)

	msg := &Message{ID: 1, Room: "general", Sender: "alice", Content: "hi", CreatedAt: time.Now().UTC()}
	if err := bridge.Publish(context.Background(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, conn := range []*testConn{a, b} {
		ev := mustEvent(t, conn.events, EventRoomMessage)
		if ev.Message.Content != "hi" || ev.Message.Sender != "alice" || ev.Message.ID != 1 {
			t.Fatalf("unexpected message event: %+v", ev.Message)
		}
	}
}

func TestBridgeGateBuffersUntilRelease(t *testing.T) {
	bridge, reg, _ := newTestBridge(t, "general")

	live := newTestConn("live", "alice")
	joining := newTestConn("join", "bob")
	reg.Add("general", live)

	bridge.OpenGate(joining)
	reg.Add("general", joining)

	ev := &Event{Kind: EventRoomMessage, Room: "general", Message: Message{ID: 7, Content: "while-joining"}}
	bridge.fanout(ev)

	mustEvent(t, live.events, EventRoomMessage)
	mustNoEvent(t, joining.events, 50*time.Millisecond)

	buffered := bridge.ReleaseGate(joining)
	if len(buffered) != 1 || buffered[0].Message.ID != 7 {
		t.Fatalf("expected one buffered event, got %+v", buffered)
	}
	got := mustEvent(t, joining.events, EventRoomMessage)
	if got.Message.ID != 7 {
		t.Fatalf("unexpected buffered message: %+v", got.Message)
	}

	// After release the connection is live.
	bridge.fanout(&Event{Kind: EventRoomMessage, Room: "general", Message: Message{ID: 8}})
	if ev := mustEvent(t, joining.events, EventRoomMessage); ev.Message.ID != 8 {
		t.Fatalf("expected live delivery of message 8, got %+v", ev.Message)
	}
}

func TestBridgeFailedDeliveryRemovesOnlyThatConnection(t *testing.T) {
	bridge, reg, _ := newTestBridge(t, "general")

	healthy := newTestConn("ok", "alice")
	broken := newTestConn("broken", "bob")
	broken.breakDelivery()
	reg.Add("general", healthy)
	reg.Add("general", broken)

	bridge.fanout(&Event{Kind: EventRoomMessage, Room: "general", Message: Message{ID: 1, Content: "hi"}})

	mustEvent(t, healthy.events, EventRoomMessage)
	if reg.Contains("general", broken) {
		t.Fatal("broken connection should have been removed")
	}
	if !reg.Contains("general", healthy) {
		t.Fatal("healthy connection must survive a partial failure")
	}
}

func TestBridgeStopIsIdempotentAndStopsDelivery(t *testing.T) {
	bridge, reg, bp := newTestBridge(t, "general")

	a := newTestConn("a", "alice")
	reg.Add("general", a)

	if err := bridge.Publish(context.Background(), &Message{ID: 1, Room: "general", Content: "before"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	mustEvent(t, a.events, EventRoomMessage)

	bridge.Stop()
	bridge.Stop()

	// Published after stop: the subscription is gone, nothing arrives.
	if err := bp.Publish(context.Background(), ChannelFor("general"), []byte(`{"id":2,"room":"general"}`)); err != nil {
		t.Fatalf("publish after stop: %v", err)
	}
	mustNoEvent(t, a.events, 50*time.Millisecond)
}

func TestBridgeDiscardGateDropsBuffer(t *testing.T) {
	bridge, reg, _ := newTestBridge(t, "general")

	joining := newTestConn("join", "bob")
	bridge.OpenGate(joining)
	reg.Add("general", joining)

	bridge.fanout(&Event{Kind: EventRoomMessage, Room: "general", Message: Message{ID: 1}})
	bridge.DiscardGate(joining)

	mustNoEvent(t, joining.events, 50*time.Millisecond)
}
