package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/mediactl/internal/core"
	"github.com/dkeye/mediactl/internal/domain"
	"github.com/rs/zerolog/log"
)

// ensure creates the room's worker and router exactly once. Concurrent first
// requests for the same room all wait on the same attempt and observe the
// same result. A failed attempt evicts the entry so a later request retries.
func (m *Manager) ensure(ctx context.Context, room domain.RoomID) (*roomEntry, error) {
	e := m.entry(room)
	e.once.Do(func() {
		worker, err := m.engine.NewWorker(ctx, room)
		if err != nil {
			e.err = fmt.Errorf("create worker: %w", err)
			return
		}
		worker.OnDied(func() {
			log.Error().Str("module", "session").Str("room", string(room)).Msg("worker died")
			m.enqueue(core.Event{Kind: core.EventWorkerDied, Room: room})
		})
		router, err := worker.NewRouter(ctx)
		if err != nil {
			if cerr := worker.Close(); cerr != nil {
				log.Error().Err(cerr).Str("module", "session").Str("room", string(room)).Msg("close worker after failed router create")
			}
			e.err = fmt.Errorf("create router: %w", err)
			return
		}
		// Published under roomMu so lookups on other goroutines see them.
		m.roomMu.Lock()
		e.worker = worker
		e.router = router
		m.roomMu.Unlock()
		log.Info().Str("module", "session").Str("room", string(room)).Msg("room created")
	})
	if e.err != nil {
		m.evict(room, e)
		return nil, e.err
	}
	// The room may have been torn down while this attempt was in flight, in
	// which case closeRoom already evicted the entry and could not see the
	// worker and router being created. Close them here instead of handing the
	// caller resources no cleanup path will ever reach.
	m.roomMu.Lock()
	current := m.rooms[room] == e
	m.roomMu.Unlock()
	if !current {
		if err := e.router.Close(); err != nil {
			log.Error().Err(err).Str("module", "session").Str("room", string(room)).Msg("close router for torn-down room")
		}
		if err := e.worker.Close(); err != nil {
			log.Error().Err(err).Str("module", "session").Str("room", string(room)).Msg("close worker for torn-down room")
		}
		return nil, ErrRoomClosed
	}
	return e, nil
}

// EnsureWorker returns the room's execution unit, creating it on first use.
func (m *Manager) EnsureWorker(ctx context.Context, room domain.RoomID) (core.Worker, error) {
	e, err := m.ensure(ctx, room)
	if err != nil {
		return nil, err
	}
	return e.worker, nil
}

// EnsureRouter returns the room's routing context, creating the worker and
// router on first use.
func (m *Manager) EnsureRouter(ctx context.Context, room domain.RoomID) (core.Router, error) {
	e, err := m.ensure(ctx, room)
	if err != nil {
		return nil, err
	}
	return e.router, nil
}

// ProducerInfo is the read-only view of a live producer returned to callers.
type ProducerInfo struct {
	ID            string           `json:"id"`
	Kind          domain.MediaKind `json:"kind"`
	RtpParameters json.RawMessage  `json:"rtpParameters"`
	UserID        domain.UserID    `json:"userId"`
}

// ExistingProducers snapshots the room's live producers, optionally
// excluding one user's own. Lets a newly joined participant discover
// current publishers without seeing its own feed.
func (m *Manager) ExistingProducers(room domain.RoomID, exclude domain.UserID) []ProducerInfo {
	ids := m.producers.MembersByRoom(room)
	out := make([]ProducerInfo, 0, len(ids))
	for _, id := range ids {
		md, ok := m.producers.Meta(id)
		if !ok || (exclude != "" && md.UserID == exclude) {
			continue
		}
		p, ok := m.producers.Get(id)
		if !ok {
			continue
		}
		out = append(out, ProducerInfo{
			ID:            p.ID(),
			Kind:          p.Kind(),
			RtpParameters: p.Parameters(),
			UserID:        md.UserID,
		})
	}
	return out
}

type RoomStats struct {
	HasRouter  bool `json:"hasRouter"`
	Transports int  `json:"transports"`
	Producers  int  `json:"producers"`
	Consumers  int  `json:"consumers"`
}

type UserStats struct {
	Transports int `json:"transports"`
	Producers  int `json:"producers"`
}

func (m *Manager) RoomStats(room domain.RoomID) RoomStats {
	_, hasRouter := m.router(room)
	return RoomStats{
		HasRouter:  hasRouter,
		Transports: len(m.transports.MembersByRoom(room)),
		Producers:  len(m.producers.MembersByRoom(room)),
		Consumers:  len(m.consumers.MembersByRoom(room)),
	}
}

func (m *Manager) UserStats(user domain.UserID) UserStats {
	return UserStats{
		Transports: len(m.transports.MembersByUser(user)),
		Producers:  len(m.producers.MembersByUser(user)),
	}
}

// IsRoomEmpty reports whether the room has no live transports. Room-level
// teardown on emptiness is the caller's policy, not ours.
func (m *Manager) IsRoomEmpty(room domain.RoomID) bool {
	return len(m.transports.MembersByRoom(room)) == 0
}
