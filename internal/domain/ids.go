// Package domain contains entity without logic, just meta-data
package domain

type (
	// RoomID is caller-supplied and scopes every resource in the system.
	RoomID string
	// UserID is caller-supplied and identifies a participant within a room.
	UserID string
)

// Direction tells which way media flows over a transport.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)
