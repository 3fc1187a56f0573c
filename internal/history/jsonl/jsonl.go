// Package jsonl implements history.Store with one append-only JSON-lines
// file per room under a base directory.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/roomcast/roomcast/internal/history"
)

// Store keeps one <room>.jsonl file per room. Appends for a room serialize
// on a per-room mutex and fsync before returning, so a completed Append is
// durable and visible to any subsequent read.
type Store struct {
	dir string

	mu    sync.Mutex
	rooms map[string]*roomLog
}

type roomLog struct {
	mu   sync.Mutex
	f    *os.File
	next int64
}

// New creates the base directory if needed and returns a store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &Store{dir: dir, rooms: make(map[string]*roomLog)}, nil
}

// CreateRoom creates the room's empty log file. An existing file means the
// room already exists; its records are left untouched.
func (s *Store) CreateRoom(_ context.Context, room string) error {
	if !history.ValidRoomName(room) {
		return fmt.Errorf("create room %q: %w", room, history.ErrInvalidRoom)
	}
	f, err := os.OpenFile(s.path(room), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("create room %q: %w", room, history.ErrRoomExists)
		}
		return fmt.Errorf("create room %q: %w", room, err)
	}
	return f.Close()
}

// RoomExists reports whether the room's log file exists.
func (s *Store) RoomExists(_ context.Context, room string) (bool, error) {
	if !history.ValidRoomName(room) {
		return false, fmt.Errorf("room %q: %w", room, history.ErrInvalidRoom)
	}
	_, err := os.Stat(s.path(room))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat room %q: %w", room, err)
}

// Append writes rec as one JSON line and syncs the file.
func (s *Store) Append(_ context.Context, room string, rec history.Record) (int64, error) {
	if !history.ValidRoomName(room) {
		return 0, fmt.Errorf("append to %q: %w", room, history.ErrInvalidRoom)
	}
	rl, err := s.roomLog(room)
	if err != nil {
		return 0, err
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec.ID = rl.next
	rec.Room = room
	line, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}
	line = append(line, '\n')
	if _, err := rl.f.Write(line); err != nil {
		return 0, fmt.Errorf("append to %q: %w", room, err)
	}
	if err := rl.f.Sync(); err != nil {
		return 0, fmt.Errorf("sync %q: %w", room, err)
	}
	rl.next++
	return rec.ID, nil
}

// ReadAll scans the room's file in write order. Lines that fail to decode
// are skipped rather than failing the whole read.
func (s *Store) ReadAll(_ context.Context, room string) ([]history.Record, error) {
	if !history.ValidRoomName(room) {
		return nil, fmt.Errorf("read %q: %w", room, history.ErrInvalidRoom)
	}
	f, err := os.Open(s.path(room))
	if err != nil {
		if os.IsNotExist(err) {
			return []history.Record{}, nil
		}
		return nil, fmt.Errorf("read %q: %w", room, err)
	}
	defer f.Close()

	records := []history.Record{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec history.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %q: %w", room, err)
	}
	return records, nil
}

// Close closes every cached room file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, rl := range s.rooms {
		rl.mu.Lock()
		if err := rl.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		rl.mu.Unlock()
	}
	s.rooms = make(map[string]*roomLog)
	return firstErr
}

func (s *Store) path(room string) string {
	return filepath.Join(s.dir, room+".jsonl")
}

// roomLog returns the cached append handle for room, opening it and
// counting existing records on first touch.
func (s *Store) roomLog(room string) (*roomLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rl, ok := s.rooms[room]; ok {
		return rl, nil
	}

	next, err := countRecords(s.path(room))
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", room, err)
	}
	f, err := os.OpenFile(s.path(room), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", room, err)
	}
	rl := &roomLog{f: f, next: next + 1}
	s.rooms[room] = rl
	return rl, nil
}

func countRecords(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return count, nil
}
