package session

import (
	"context"

	"github.com/dkeye/mediactl/internal/core"
	"github.com/dkeye/mediactl/internal/domain"
	"github.com/dkeye/mediactl/internal/observe"
	"github.com/rs/zerolog/log"
)

// Run is the teardown coordinator loop. It is the only place engine
// termination events mutate the registry, which keeps cleanup centrally
// testable and avoids re-entrant mutation from engine callback contexts.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
			for {
				ev, ok := m.dequeue()
				if !ok {
					break
				}
				m.handleEvent(ev)
			}
		}
	}
}

func (m *Manager) handleEvent(ev core.Event) {
	log.Info().
		Str("module", "session").
		Str("event", ev.Kind.String()).
		Str("id", ev.ID).
		Str("room", string(ev.Room)).
		Msg("termination event")
	switch ev.Kind {
	case core.EventTransportClosed:
		m.CleanupTransport(ev.ID)
	case core.EventProducerClosed:
		m.CleanupProducer(ev.ID)
	case core.EventConsumerClosed:
		m.CleanupConsumer(ev.ID)
	case core.EventWorkerDied:
		// Fatal for this room only; other rooms are unaffected.
		m.CleanupRoom(ev.Room)
	}
}

// CleanupTransport removes the transport and closes it in the engine.
// Safe to call twice: the second removal is a no-op.
func (m *Manager) CleanupTransport(id string) {
	tr, md, ok := m.transports.Remove(id)
	if !ok {
		return
	}
	if err := tr.Close(); err != nil {
		log.Error().Err(err).Str("module", "session").Str("transport", id).Msg("engine close failed during teardown")
	}
	observe.Teardowns.WithLabelValues("transport").Inc()
	log.Info().
		Str("module", "session").
		Str("transport", id).
		Str("user", string(md.UserID)).
		Str("room", string(md.RoomID)).
		Msg("transport removed")
}

func (m *Manager) CleanupProducer(id string) {
	p, md, ok := m.producers.Remove(id)
	if !ok {
		return
	}
	if err := p.Close(); err != nil {
		log.Error().Err(err).Str("module", "session").Str("producer", id).Msg("engine close failed during teardown")
	}
	observe.Teardowns.WithLabelValues("producer").Inc()
	log.Info().
		Str("module", "session").
		Str("producer", id).
		Str("user", string(md.UserID)).
		Str("room", string(md.RoomID)).
		Msg("producer removed")
}

func (m *Manager) CleanupConsumer(id string) {
	c, md, ok := m.consumers.Remove(id)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Error().Err(err).Str("module", "session").Str("consumer", id).Msg("engine close failed during teardown")
	}
	observe.Teardowns.WithLabelValues("consumer").Inc()
	log.Info().
		Str("module", "session").
		Str("consumer", id).
		Str("user", string(md.UserID)).
		Str("room", string(md.RoomID)).
		Msg("consumer removed")
}

// CleanupUserFromRoom tears down exactly the disconnecting user's resources
// in the given room, using the owner-by-user indices filtered by roomId.
// The room itself stays up even if it becomes empty; emptiness is exposed
// via IsRoomEmpty for the caller's policy.
func (m *Manager) CleanupUserFromRoom(user domain.UserID, room domain.RoomID) {
	for _, id := range m.transports.MembersByUser(user) {
		if md, ok := m.transports.Meta(id); ok && md.RoomID == room {
			m.CleanupTransport(id)
		}
	}
	for _, id := range m.producers.MembersByUser(user) {
		if md, ok := m.producers.Meta(id); ok && md.RoomID == room {
			m.CleanupProducer(id)
		}
	}
	for _, id := range m.consumers.MembersByUser(user) {
		if md, ok := m.consumers.Meta(id); ok && md.RoomID == room {
			m.CleanupConsumer(id)
		}
	}
	log.Info().Str("module", "session").Str("user", string(user)).Str("room", string(room)).Msg("user cleaned from room")
}

// CleanupRoom tears down every resource in the room, then the router and
// worker. Engine failures on individual resources are logged and never abort
// the teardown of siblings. Idempotent.
func (m *Manager) CleanupRoom(room domain.RoomID) {
	// Index snapshots, so teardown never iterates a set it is mutating.
	for _, id := range m.transports.MembersByRoom(room) {
		m.CleanupTransport(id)
	}
	for _, id := range m.producers.MembersByRoom(room) {
		m.CleanupProducer(id)
	}
	for _, id := range m.consumers.MembersByRoom(room) {
		m.CleanupConsumer(id)
	}
	m.closeRoom(room)
}

func (m *Manager) closeRoom(room domain.RoomID) {
	m.roomMu.Lock()
	e, ok := m.rooms[room]
	if ok {
		delete(m.rooms, room)
	}
	m.roomMu.Unlock()
	if !ok {
		return
	}
	if e.router != nil {
		if err := e.router.Close(); err != nil {
			log.Error().Err(err).Str("module", "session").Str("room", string(room)).Msg("engine close router failed")
		}
	}
	if e.worker != nil {
		if err := e.worker.Close(); err != nil {
			log.Error().Err(err).Str("module", "session").Str("room", string(room)).Msg("engine close worker failed")
		}
	}
	log.Info().Str("module", "session").Str("room", string(room)).Msg("room removed")
}
