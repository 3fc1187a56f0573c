package jsonl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roomcast/roomcast/internal/history"
)

func newStore(t *testing.T, dir string) *Store {
	t.Helper()

	st, err := New(dir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func record(sender, content string) history.Record {
	return history.Record{Sender: sender, Content: content, CreatedAt: time.Now().UTC()}
}

func TestCreateRoomIsExclusive(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, t.TempDir())

	if err := st.CreateRoom(ctx, "general"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.CreateRoom(ctx, "general"); !errors.Is(err, history.ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}

	exists, err := st.RoomExists(ctx, "general")
	if err != nil || !exists {
		t.Fatalf("room should exist: %v %v", exists, err)
	}
	exists, err = st.RoomExists(ctx, "ghost")
	if err != nil || exists {
		t.Fatalf("ghost should not exist: %v %v", exists, err)
	}
}

func TestInvalidRoomNamesAreRejected(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, t.TempDir())

	for _, name := range []string{"", "../escape", "has space", "way/too/deep", strings.Repeat("x", 65)} {
		if err := st.CreateRoom(ctx, name); !errors.Is(err, history.ErrInvalidRoom) {
			t.Fatalf("create %q: expected ErrInvalidRoom, got %v", name, err)
		}
		if _, err := st.Append(ctx, name, record("a", "x")); !errors.Is(err, history.ErrInvalidRoom) {
			t.Fatalf("append %q: expected ErrInvalidRoom, got %v", name, err)
		}
		if _, err := st.ReadAll(ctx, name); !errors.Is(err, history.ErrInvalidRoom) {
			t.Fatalf("read %q: expected ErrInvalidRoom, got %v", name, err)
		}
	}
}

func TestAppendAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, t.TempDir())

	for i := 1; i <= 3; i++ {
		id, err := st.Append(ctx, "general", record("alice", fmt.Sprintf("msg-%d", i)))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if id != int64(i) {
			t.Fatalf("expected id %d, got %d", i, id)
		}
	}

	records, err := st.ReadAll(ctx, "general")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, rec := range records {
		if rec.ID != int64(i+1) || rec.Room != "general" || rec.Sender != "alice" {
			t.Fatalf("record %d malformed: %+v", i, rec)
		}
	}
}

func TestReadAllOfMissingRoomIsEmpty(t *testing.T) {
	st := newStore(t, t.TempDir())

	records, err := st.ReadAll(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestRecordsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st := newStore(t, dir)
	if _, err := st.Append(ctx, "general", record("alice", "first")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := st.Append(ctx, "general", record("bob", "second")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := newStore(t, dir)
	id, err := reopened.Append(ctx, "general", record("alice", "third"))
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if id != 3 {
		t.Fatalf("ids must continue across restarts, got %d", id)
	}
	records, err := reopened.ReadAll(ctx, "general")
	if err != nil || len(records) != 3 {
		t.Fatalf("expected 3 records after reopen, got %d (err %v)", len(records), err)
	}
	if records[2].Content != "third" {
		t.Fatalf("unexpected tail record: %+v", records[2])
	}
}

func TestReadAllSkipsCorruptLines(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := newStore(t, dir)

	if _, err := st.Append(ctx, "general", record("alice", "ok")); err != nil {
		t.Fatalf("append: %v", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "general.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()

	records, err := st.ReadAll(ctx, "general")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 1 || records[0].Content != "ok" {
		t.Fatalf("expected the one valid record, got %+v", records)
	}
}

func TestConcurrentAppendsKeepIDsUnique(t *testing.T) {
	ctx := context.Background()
	st := newStore(t, t.TempDir())

	const writers = 8
	const perWriter = 20

	var wg sync.WaitGroup
	ids := make(chan int64, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id, err := st.Append(ctx, "busy", record(fmt.Sprintf("w%d", w), "x"))
				if err != nil {
					t.Errorf("append: %v", err)
					return
				}
				ids <- id
			}
		}(w)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	records, err := st.ReadAll(ctx, "busy")
	if err != nil || len(records) != writers*perWriter {
		t.Fatalf("expected %d records, got %d (err %v)", writers*perWriter, len(records), err)
	}
}
