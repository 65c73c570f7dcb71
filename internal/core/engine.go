package core

import (
	"context"
	"encoding/json"

	"github.com/dkeye/mediactl/internal/domain"
)

// Engine is the media-engine capability consumed by the lifecycle layer.
// All parameter blobs are engine-specific and travel opaquely through the
// control plane as raw JSON.
type Engine interface {
	// NewWorker allocates the per-room execution unit.
	NewWorker(ctx context.Context, room domain.RoomID) (Worker, error)
}

// Worker is the per-room execution unit. It owns exactly one Router.
type Worker interface {
	NewRouter(ctx context.Context) (Router, error)
	// OnDied sets a callback for unrecoverable worker failure.
	// The callback must not call back into the lifecycle layer directly.
	OnDied(func())
	Close() error
}

// Router negotiates codec capabilities and routes media between transports.
type Router interface {
	Capabilities() json.RawMessage
	CanConsume(producerID string, rtpCapabilities json.RawMessage) bool
	NewTransport(ctx context.Context, direction domain.Direction) (Transport, error)
	Close() error
}

// TransportInfo carries the connection parameters the remote peer needs:
// candidate addresses and security material. Contents are engine-specific.
type TransportInfo struct {
	ID             string          `json:"id"`
	ICEParameters  json.RawMessage `json:"iceParameters,omitempty"`
	ICECandidates  json.RawMessage `json:"iceCandidates,omitempty"`
	DTLSParameters json.RawMessage `json:"dtlsParameters,omitempty"`
}

// Transport is one user's network endpoint in one direction.
type Transport interface {
	ID() string
	Info() TransportInfo
	// Connect finalizes the connection with the peer's security parameters.
	Connect(ctx context.Context, security json.RawMessage) error
	Produce(ctx context.Context, kind domain.MediaKind, rtpParameters json.RawMessage) (Producer, error)
	Consume(ctx context.Context, producerID string, rtpCapabilities json.RawMessage, paused bool) (Consumer, error)
	// OnClosed sets a callback for a terminal connection state (e.g. DTLS closed).
	OnClosed(func())
	Close() error
}

// Producer is a single published media track.
type Producer interface {
	ID() string
	Kind() domain.MediaKind
	Parameters() json.RawMessage
	// OnTransportClosed fires when the owning transport goes away.
	OnTransportClosed(func())
	Close() error
}

// Consumer is a single subscribed media track referencing one producer.
type Consumer interface {
	ID() string
	Kind() domain.MediaKind
	Parameters() json.RawMessage
	Pause() error
	Resume() error
	OnTransportClosed(func())
	OnProducerClosed(func())
	Close() error
}
