package core

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/backplane"
	"github.com/roomcast/roomcast/internal/history"
)

// Replay reports what a join delivered to the connection: the persisted
// history followed by any messages that arrived on the backplane while the
// history was being read. Both are delivered in order through the
// connection's event queue before it switches to live fanout.
type Replay struct {
	Room     string
	Token    string
	History  []Message
	Buffered []Message
}

// Manager mediates room create, join, and leave, and ties each room's
// Bridge lifetime to local occupancy: a Bridge subscription exists on this
// process if and only if the room has at least one local connection.
type Manager struct {
	reg        *Registry
	store      history.Store
	bp         backplane.Backplane
	log        zerolog.Logger
	autoCreate bool

	mu    sync.Mutex
	rooms map[string]*roomState
}

type roomState struct {
	mu     sync.Mutex
	bridge *Bridge
}

// NewManager constructs a room lifecycle manager. When autoCreate is set,
// joining an unknown room creates it instead of failing.
func NewManager(reg *Registry, store history.Store, bp backplane.Backplane, logger zerolog.Logger, autoCreate bool) *Manager {
	return &Manager{
		reg:        reg,
		store:      store,
		bp:         bp,
		log:        logger,
		autoCreate: autoCreate,
		rooms:      make(map[string]*roomState),
	}
}

// Create establishes the room's durable existence. Creation implies no
// subscription; that starts with the first local join.
func (m *Manager) Create(ctx context.Context, room string) error {
	err := m.store.CreateRoom(ctx, room)
	switch {
	case err == nil:
		m.log.Info().Str("room", room).Msg("room created")
		return nil
	case errors.Is(err, history.ErrRoomExists):
		return coreError(ErrRoomExists, ErrCodeRoomExists, "room "+room+" already exists")
	case errors.Is(err, history.ErrInvalidRoom):
		return coreError(ErrStorageFailure, ErrCodeStorageFailure, "invalid room name "+room)
	default:
		return coreError(err, ErrCodeStorageFailure, "create room: "+err.Error())
	}
}

// Join attaches conn to room. It subscribes to the backplane before reading
// history, gating fanout for conn in between, so no message published
// around the join is lost: the history event and the gated tail are
// delivered through conn's event queue ahead of any live message.
func (m *Manager) Join(ctx context.Context, room string, conn Conn) (*Replay, error) {
	exists, err := m.store.RoomExists(ctx, room)
	if err != nil {
		if errors.Is(err, history.ErrInvalidRoom) {
			return nil, coreError(ErrRoomNotFound, ErrCodeRoomNotFound, "invalid room name "+room)
		}
		return nil, coreError(err, ErrCodeStorageFailure, "check room: "+err.Error())
	}
	if !exists {
		if !m.autoCreate {
			return nil, coreError(ErrRoomNotFound, ErrCodeRoomNotFound, "room "+room+" not found")
		}
		if err := m.store.CreateRoom(ctx, room); err != nil && !errors.Is(err, history.ErrRoomExists) {
			return nil, coreError(err, ErrCodeStorageFailure, "auto-create room: "+err.Error())
		}
	}

	// A concurrent last-leave can delete the room state between lookup and
	// lock; retry until the locked state is the one in the map.
	var rs *roomState
	for {
		rs = m.state(room)
		rs.mu.Lock()
		if m.lookup(room) == rs {
			break
		}
		rs.mu.Unlock()
	}
	defer rs.mu.Unlock()

	if rs.bridge == nil {
		bridge, err := StartBridge(ctx, room, m.bp, m.reg, m.log)
		if err != nil {
			return nil, err
		}
		rs.bridge = bridge
	}

	// Gate before registering so the fanout loop can never deliver to
	// conn ahead of its history replay.
	rs.bridge.OpenGate(conn)
	m.reg.Add(room, conn)

	records, err := m.store.ReadAll(ctx, room)
	if err != nil {
		rs.bridge.DiscardGate(conn)
		m.reg.Remove(room, conn)
		m.stopBridgeIfEmptyLocked(room, rs)
		return nil, coreError(err, ErrCodeStorageFailure, "read history: "+err.Error())
	}

	token := uuid.NewString()
	msgs := recordsToMessages(records)
	if err := conn.Deliver(&Event{Kind: EventHistory, Room: room, Messages: msgs, Token: token}); err != nil {
		rs.bridge.DiscardGate(conn)
		m.reg.Remove(room, conn)
		m.stopBridgeIfEmptyLocked(room, rs)
		return nil, coreError(err, ErrCodeBackplaneFailure, "deliver history: "+err.Error())
	}

	buffered := rs.bridge.ReleaseGate(conn)
	m.log.Debug().Str("room", room).Str("conn_id", conn.ID()).
		Int("history", len(msgs)).Int("buffered", len(buffered)).Msg("connection joined")

	return &Replay{
		Room:     room,
		Token:    token,
		History:  msgs,
		Buffered: eventsToMessages(buffered),
	}, nil
}

// Leave detaches conn from room. The last local connection leaving stops
// the room's Bridge; repeated leaves are a no-op reported as ErrNotAMember.
func (m *Manager) Leave(_ context.Context, room string, conn Conn) error {
	rs := m.lookup(room)
	if rs == nil {
		return coreError(ErrNotAMember, ErrCodeNotAMember, "not a member of "+room)
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	removed := m.reg.Remove(room, conn)
	m.stopBridgeIfEmptyLocked(room, rs)
	if !removed {
		return coreError(ErrNotAMember, ErrCodeNotAMember, "not a member of "+room)
	}
	m.log.Debug().Str("room", room).Str("conn_id", conn.ID()).Msg("connection left")
	return nil
}

// LeaveAll sweeps conn out of every room it joined, for disconnects.
func (m *Manager) LeaveAll(ctx context.Context, conn Conn) {
	m.mu.Lock()
	names := make([]string, 0, len(m.rooms))
	for name := range m.rooms {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		if m.reg.Contains(name, conn) {
			_ = m.Leave(ctx, name, conn)
		}
	}
}

// Shutdown stops every live Bridge. Connections are left to their
// transports.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	states := make([]*roomState, 0, len(m.rooms))
	for _, rs := range m.rooms {
		states = append(states, rs)
	}
	m.rooms = make(map[string]*roomState)
	m.mu.Unlock()

	for _, rs := range states {
		rs.mu.Lock()
		if rs.bridge != nil {
			rs.bridge.Stop()
			rs.bridge = nil
		}
		rs.mu.Unlock()
	}
}

// bridgeFor returns the room's live Bridge, or nil if none is running.
func (m *Manager) bridgeFor(room string) *Bridge {
	rs := m.lookup(room)
	if rs == nil {
		return nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.bridge
}

// stopBridgeIfEmptyLocked cancels the room's subscription once the last
// local connection is gone. Callers hold rs.mu.
func (m *Manager) stopBridgeIfEmptyLocked(room string, rs *roomState) {
	if rs.bridge == nil || !m.reg.IsEmpty(room) {
		return
	}
	rs.bridge.Stop()
	rs.bridge = nil
	m.reg.Purge(room)

	m.mu.Lock()
	if cur, ok := m.rooms[room]; ok && cur == rs {
		delete(m.rooms, room)
	}
	m.mu.Unlock()
	m.log.Debug().Str("room", room).Msg("room emptied, bridge stopped")
}

func (m *Manager) state(room string) *roomState {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.rooms[room]
	if !ok {
		rs = &roomState{}
		m.rooms[room] = rs
	}
	return rs
}

func (m *Manager) lookup(room string) *roomState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[room]
}

func recordsToMessages(records []history.Record) []Message {
	msgs := make([]Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, Message{
			ID:        rec.ID,
			Room:      rec.Room,
			Sender:    rec.Sender,
			Content:   rec.Content,
			CreatedAt: rec.CreatedAt,
		})
	}
	return msgs
}

func eventsToMessages(events []*Event) []Message {
	msgs := make([]Message, 0, len(events))
	for _, ev := range events {
		msgs = append(msgs, ev.Message)
	}
	return msgs
}
