package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/mediactl/internal/core"
	"github.com/dkeye/mediactl/internal/domain"
	"github.com/rs/zerolog/log"
)

// CreateTransport allocates a transport on the room's router and registers
// it with ownership metadata. The returned info (addresses, security
// parameters) is relayed to the remote peer by the caller.
func (m *Manager) CreateTransport(ctx context.Context, room domain.RoomID, user domain.UserID, direction domain.Direction) (core.TransportInfo, error) {
	router, ok := m.router(room)
	if !ok {
		return core.TransportInfo{}, ErrRouterNotFound
	}
	tr, err := router.NewTransport(ctx, direction)
	if err != nil {
		return core.TransportInfo{}, fmt.Errorf("engine create transport: %w", err)
	}
	id := tr.ID()
	tr.OnClosed(func() {
		m.enqueue(core.Event{Kind: core.EventTransportClosed, ID: id, Room: room})
	})
	m.transports.Put(id, tr, domain.Metadata{
		UserID:    user,
		RoomID:    room,
		CreatedAt: time.Now(),
		Direction: direction,
	})
	log.Info().
		Str("module", "session").
		Str("room", string(room)).
		Str("user", string(user)).
		Str("transport", id).
		Str("direction", string(direction)).
		Msg("transport created")
	return tr.Info(), nil
}

// ConnectTransport finalizes the transport's connection. No ownership check
// here: connect is driven by the signaling flow that was authorized when the
// transport was created.
func (m *Manager) ConnectTransport(ctx context.Context, transportID string, security json.RawMessage) error {
	tr, ok := m.transports.Get(transportID)
	if !ok {
		return ErrTransportNotFound
	}
	if err := tr.Connect(ctx, security); err != nil {
		return fmt.Errorf("engine connect transport: %w", err)
	}
	return nil
}

// CreateProducer publishes a track on the user's own transport.
func (m *Manager) CreateProducer(ctx context.Context, room domain.RoomID, user domain.UserID, transportID string, kind domain.MediaKind, rtpParameters json.RawMessage) (ProducerInfo, error) {
	if !m.transports.ValidateOwnership(transportID, user, room) {
		return ProducerInfo{}, ErrUnauthorized
	}
	tr, ok := m.transports.Get(transportID)
	if !ok {
		return ProducerInfo{}, ErrTransportNotFound
	}
	p, err := tr.Produce(ctx, kind, rtpParameters)
	if err != nil {
		return ProducerInfo{}, fmt.Errorf("engine produce: %w", err)
	}
	id := p.ID()
	p.OnTransportClosed(func() {
		m.enqueue(core.Event{Kind: core.EventProducerClosed, ID: id, Room: room})
	})
	m.producers.Put(id, p, domain.Metadata{
		UserID:    user,
		RoomID:    room,
		CreatedAt: time.Now(),
		Kind:      kind,
	})
	log.Info().
		Str("module", "session").
		Str("room", string(room)).
		Str("user", string(user)).
		Str("producer", id).
		Str("kind", string(kind)).
		Msg("producer created")
	return ProducerInfo{ID: id, Kind: p.Kind(), RtpParameters: p.Parameters(), UserID: user}, nil
}

// ConsumerInfo is returned to the subscribing caller.
type ConsumerInfo struct {
	ID            string           `json:"id"`
	Kind          domain.MediaKind `json:"kind"`
	RtpParameters json.RawMessage  `json:"rtpParameters"`
	ProducerID    string           `json:"producerId"`
}

// CreateConsumer subscribes the user to another user's producer. Video
// consumers start paused so decode cost is deferred until the caller
// explicitly resumes.
func (m *Manager) CreateConsumer(ctx context.Context, room domain.RoomID, user domain.UserID, transportID, producerID string, rtpCapabilities json.RawMessage) (ConsumerInfo, error) {
	if !m.transports.ValidateOwnership(transportID, user, room) {
		return ConsumerInfo{}, ErrUnauthorized
	}
	pmd, ok := m.producers.Meta(producerID)
	if !ok {
		return ConsumerInfo{}, ErrProducerNotFound
	}
	if pmd.UserID == user {
		return ConsumerInfo{}, ErrSelfConsume
	}
	router, ok := m.router(room)
	if !ok {
		return ConsumerInfo{}, ErrRouterNotFound
	}
	if !router.CanConsume(producerID, rtpCapabilities) {
		return ConsumerInfo{}, ErrCannotConsume
	}
	tr, ok := m.transports.Get(transportID)
	if !ok {
		return ConsumerInfo{}, ErrTransportNotFound
	}
	c, err := tr.Consume(ctx, producerID, rtpCapabilities, pmd.Kind == domain.MediaKindVideo)
	if err != nil {
		return ConsumerInfo{}, fmt.Errorf("engine consume: %w", err)
	}
	id := c.ID()
	onClosed := func() {
		m.enqueue(core.Event{Kind: core.EventConsumerClosed, ID: id, Room: room})
	}
	c.OnTransportClosed(onClosed)
	c.OnProducerClosed(onClosed)
	m.consumers.Put(id, c, domain.Metadata{
		UserID:     user,
		RoomID:     room,
		CreatedAt:  time.Now(),
		Kind:       c.Kind(),
		ProducerID: producerID,
	})
	log.Info().
		Str("module", "session").
		Str("room", string(room)).
		Str("user", string(user)).
		Str("consumer", id).
		Str("producer", producerID).
		Msg("consumer created")
	return ConsumerInfo{ID: id, Kind: c.Kind(), RtpParameters: c.Parameters(), ProducerID: producerID}, nil
}

func (m *Manager) PauseConsumer(consumerID string) error {
	c, ok := m.consumers.Get(consumerID)
	if !ok {
		return ErrConsumerNotFound
	}
	if err := c.Pause(); err != nil {
		return fmt.Errorf("engine pause: %w", err)
	}
	return nil
}

func (m *Manager) ResumeConsumer(consumerID string) error {
	c, ok := m.consumers.Get(consumerID)
	if !ok {
		return ErrConsumerNotFound
	}
	if err := c.Resume(); err != nil {
		return fmt.Errorf("engine resume: %w", err)
	}
	return nil
}
