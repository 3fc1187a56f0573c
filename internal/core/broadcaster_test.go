package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/backplane"
	"github.com/roomcast/roomcast/internal/history"
)

// faultStore injects append failures over a working store.
type faultStore struct {
	history.Store
	appendErr error
}

func (s *faultStore) Append(ctx context.Context, room string, rec history.Record) (int64, error) {
	if s.appendErr != nil {
		return 0, s.appendErr
	}
	return s.Store.Append(ctx, room, rec)
}

// faultBackplane injects publish failures over a working backplane.
type faultBackplane struct {
	backplane.Backplane
	publishErr error
}

func (b *faultBackplane) Publish(ctx context.Context, channel string, payload []byte) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	return b.Backplane.Publish(ctx, channel, payload)
}

func TestSubmitRejectsMalformedContent(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t, backplane.NewMemory(), newTestStore(t), true)

	conn := newTestConn("a", "alice")
	if _, err := gw.mgr.Join(ctx, "general", conn); err != nil {
		t.Fatalf("join: %v", err)
	}

	for _, content := range []string{"", "   ", "\n"} {
		if _, err := gw.bcast.Submit(ctx, "general", conn, content); ErrorCode(err) != ErrCodeMalformedMessage {
			t.Fatalf("content %q: expected malformed_message, got %v", content, err)
		}
	}
}

func TestSubmitRejectsOversizeContent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	reg := NewRegistry()
	mgr := NewManager(reg, st, backplane.NewMemory(), zerolog.Nop(), true)
	t.Cleanup(mgr.Shutdown)
	bcast := NewBroadcaster(reg, st, mgr, zerolog.Nop(), 8)

	conn := newTestConn("a", "alice")
	if _, err := mgr.Join(context.Background(), "general", conn); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := bcast.Submit(ctx, "general", conn, "way past eight bytes"); ErrorCode(err) != ErrCodeMalformedMessage {
		t.Fatal("expected malformed_message for oversize content")
	}
}

func TestSubmitRequiresMembership(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t, backplane.NewMemory(), newTestStore(t), false)

	if err := gw.mgr.Create(ctx, "general"); err != nil {
		t.Fatalf("create: %v", err)
	}
	outsider := newTestConn("x", "mallory")
	if _, err := gw.bcast.Submit(ctx, "general", outsider, "let me in"); ErrorCode(err) != ErrCodeNotAMember {
		t.Fatalf("expected not_a_member, got %v", err)
	}
}

func TestSubmitAppendFailureIsNeverObserved(t *testing.T) {
	ctx := context.Background()
	bp := backplane.NewMemory()
	st := &faultStore{Store: newTestStore(t)}

	reg := NewRegistry()
	mgr := NewManager(reg, st, bp, zerolog.Nop(), true)
	t.Cleanup(mgr.Shutdown)
	bcast := NewBroadcaster(reg, st, mgr, zerolog.Nop(), 4096)

	alice := newTestConn("a", "alice")
	bob := newTestConn("b", "bob")
	if _, err := mgr.Join(ctx, "general", alice); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := mgr.Join(ctx, "general", bob); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	mustEvent(t, alice.events, EventHistory)
	mustEvent(t, bob.events, EventHistory)

	st.appendErr = errors.New("disk gone")
	if _, err := bcast.Submit(ctx, "general", alice, "lost?"); ErrorCode(err) != ErrCodeStorageFailure {
		t.Fatalf("expected storage_failure, got %v", err)
	}

	// Nothing was published and nothing persisted.
	mustNoEvent(t, alice.events, 100*time.Millisecond)
	mustNoEvent(t, bob.events, 100*time.Millisecond)
	records, err := st.ReadAll(ctx, "general")
	if err != nil || len(records) != 0 {
		t.Fatalf("expected empty history, got %d records (err %v)", len(records), err)
	}
}

func TestSubmitPublishFailureDegradesButPersists(t *testing.T) {
	ctx := context.Background()
	bp := &faultBackplane{Backplane: backplane.NewMemory()}
	st := newTestStore(t)

	reg := NewRegistry()
	mgr := NewManager(reg, st, bp, zerolog.Nop(), true)
	t.Cleanup(mgr.Shutdown)
	bcast := NewBroadcaster(reg, st, mgr, zerolog.Nop(), 4096)

	alice := newTestConn("a", "alice")
	if _, err := mgr.Join(ctx, "general", alice); err != nil {
		t.Fatalf("join: %v", err)
	}
	mustEvent(t, alice.events, EventHistory)

	bp.publishErr = errors.New("backplane down")
	ack, err := bcast.Submit(ctx, "general", alice, "durable anyway")
	if err != nil {
		t.Fatalf("submit should degrade, not fail: %v", err)
	}
	if !ack.Degraded {
		t.Fatal("expected degraded ack after publish failure")
	}

	records, err := st.ReadAll(ctx, "general")
	if err != nil || len(records) != 1 || records[0].Content != "durable anyway" {
		t.Fatalf("message must be durably recorded: %v %v", records, err)
	}
	// Future joiners see it via replay.
	bob := newTestConn("b", "bob")
	if _, err := mgr.Join(ctx, "general", bob); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	hist := mustEvent(t, bob.events, EventHistory)
	if len(hist.Messages) != 1 || hist.Messages[0].Content != "durable anyway" {
		t.Fatalf("unexpected replay: %+v", hist.Messages)
	}
}
