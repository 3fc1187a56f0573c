// Package sqlite implements history.Store on a SQLite database, sharing
// one file across every gateway process on a host.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roomcast/roomcast/internal/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room       TEXT NOT NULL,
	sender     TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, id);
`

// Store implements history.Store for SQLite.
type Store struct {
	db *sql.DB
}

// New opens (and bootstraps) the database at dbPath.
// Timestamps are stored as Unix nanoseconds so records round-trip exactly.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection per process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateRoom inserts the room row.
func (s *Store) CreateRoom(ctx context.Context, room string) error {
	if !history.ValidRoomName(room) {
		return fmt.Errorf("create room %q: %w", room, history.ErrInvalidRoom)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (name, created_at) VALUES (?, ?)`,
		room, time.Now().UnixNano(),
	)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("create room %q: %w", room, history.ErrRoomExists)
		}
		return fmt.Errorf("create room %q: %w", room, err)
	}
	return nil
}

// RoomExists reports whether the room row exists.
func (s *Store) RoomExists(ctx context.Context, room string) (bool, error) {
	if !history.ValidRoomName(room) {
		return false, fmt.Errorf("room %q: %w", room, history.ErrInvalidRoom)
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM rooms WHERE name = ?`, room,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query room %q: %w", room, err)
	}
	return true, nil
}

// Append inserts rec and returns its rowid. The single-connection pool
// serializes concurrent appends into one total order.
func (s *Store) Append(ctx context.Context, room string, rec history.Record) (int64, error) {
	if !history.ValidRoomName(room) {
		return 0, fmt.Errorf("append to %q: %w", room, history.ErrInvalidRoom)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (room, sender, content, created_at) VALUES (?, ?, ?, ?)`,
		room, rec.Sender, rec.Content, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("append to %q: %w", room, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// ReadAll returns the room's records ordered by rowid.
func (s *Store) ReadAll(ctx context.Context, room string) ([]history.Record, error) {
	if !history.ValidRoomName(room) {
		return nil, fmt.Errorf("read %q: %w", room, history.ErrInvalidRoom)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, content, created_at FROM messages WHERE room = ? ORDER BY id`,
		room,
	)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", room, err)
	}
	defer rows.Close()

	records := []history.Record{}
	for rows.Next() {
		var rec history.Record
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.Sender, &rec.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Room = room
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %q: %w", room, err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
