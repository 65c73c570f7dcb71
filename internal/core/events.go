package core

import "github.com/dkeye/mediactl/internal/domain"

// EventKind enumerates asynchronous termination signals from the engine.
type EventKind int

const (
	EventTransportClosed EventKind = iota
	EventProducerClosed
	EventConsumerClosed
	EventWorkerDied
)

func (k EventKind) String() string {
	switch k {
	case EventTransportClosed:
		return "transport-closed"
	case EventProducerClosed:
		return "producer-closed"
	case EventConsumerClosed:
		return "consumer-closed"
	case EventWorkerDied:
		return "worker-died"
	}
	return "unknown"
}

// Event is a typed termination signal. Engine observers only enqueue these;
// all registry mutation happens on the coordinator's own loop.
type Event struct {
	Kind EventKind
	// ID of the affected resource; empty for worker-died.
	ID   string
	Room domain.RoomID
}
