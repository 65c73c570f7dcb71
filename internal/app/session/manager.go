// Package session owns the lifecycle of all media resources: per-room
// workers and routers, per-user transports, producers and consumers.
// Resource state lives exclusively in the registry tables; the manager only
// borrows references for the duration of one operation.
package session

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/mediactl/internal/core"
	"github.com/dkeye/mediactl/internal/domain"
	"github.com/dkeye/mediactl/internal/registry"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	engine core.Engine

	transports *registry.Table[core.Transport]
	producers  *registry.Table[core.Producer]
	consumers  *registry.Table[core.Consumer]

	roomMu sync.Mutex
	rooms  map[domain.RoomID]*roomEntry

	// Pending termination events. An unbounded slice rather than a channel:
	// teardown of one resource cascades close signals for its children, and
	// those arrive while the coordinator is still inside the parent's cleanup.
	// Enqueue must therefore never block, whatever the cascade fan-out.
	evMu    sync.Mutex
	pending []core.Event
	wake    chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// roomEntry guards at-most-once creation of a room's worker and router.
// The engine round trip runs inside the Once, outside any map lock, so a
// slow room creation never blocks other rooms or registry access.
type roomEntry struct {
	once   sync.Once
	worker core.Worker
	router core.Router
	err    error
}

func NewManager(engine core.Engine) *Manager {
	return &Manager{
		engine:     engine,
		transports: registry.NewTable[core.Transport](),
		producers:  registry.NewTable[core.Producer](),
		consumers:  registry.NewTable[core.Consumer](),
		rooms:      make(map[domain.RoomID]*roomEntry),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// enqueue hands a termination event to the coordinator loop without ever
// blocking the caller. Engine callbacks never mutate the registry themselves.
func (m *Manager) enqueue(ev core.Event) {
	select {
	case <-m.done:
		return
	default:
	}
	m.evMu.Lock()
	m.pending = append(m.pending, ev)
	m.evMu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// dequeue pops the oldest pending event.
func (m *Manager) dequeue() (core.Event, bool) {
	m.evMu.Lock()
	defer m.evMu.Unlock()
	if len(m.pending) == 0 {
		m.pending = nil
		return core.Event{}, false
	}
	ev := m.pending[0]
	m.pending = m.pending[1:]
	return ev, true
}

func (m *Manager) entry(room domain.RoomID) *roomEntry {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()
	e, ok := m.rooms[room]
	if !ok {
		e = &roomEntry{}
		m.rooms[room] = e
	}
	return e
}

// router returns the room's routing context if one has been created.
func (m *Manager) router(room domain.RoomID) (core.Router, bool) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()
	e, ok := m.rooms[room]
	if !ok || e.router == nil {
		return nil, false
	}
	return e.router, true
}

func (m *Manager) evict(room domain.RoomID, e *roomEntry) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()
	if m.rooms[room] == e {
		delete(m.rooms, room)
	}
}

// Consumer looks up a live consumer by id.
func (m *Manager) Consumer(id string) (core.Consumer, bool) {
	return m.consumers.Get(id)
}

// RouterCapabilities returns the room's negotiated capability set, without
// creating the room.
func (m *Manager) RouterCapabilities(room domain.RoomID) (json.RawMessage, bool) {
	r, ok := m.router(room)
	if !ok {
		return nil, false
	}
	return r.Capabilities(), true
}

// Shutdown tears down every room and stops accepting engine events.
func (m *Manager) Shutdown() {
	m.roomMu.Lock()
	rooms := make([]domain.RoomID, 0, len(m.rooms))
	for room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.roomMu.Unlock()

	for _, room := range rooms {
		m.CleanupRoom(room)
	}
	m.closeOnce.Do(func() { close(m.done) })
	log.Info().Str("module", "session").Int("rooms", len(rooms)).Msg("manager shut down")
}
