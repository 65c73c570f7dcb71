package domain

import "time"

// Metadata is the ownership record stored next to every live resource.
// Registry removal uses it to find the owner index sets without scanning.
type Metadata struct {
	UserID    UserID
	RoomID    RoomID
	CreatedAt time.Time

	// Kind is set for producers and consumers.
	Kind MediaKind
	// ProducerID is set for consumers only.
	ProducerID string
	// Direction is set for transports only.
	Direction Direction
}

func (m Metadata) Owns(user UserID, room RoomID) bool {
	return m.UserID == user && m.RoomID == room
}
