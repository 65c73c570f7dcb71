package session

import "errors"

var (
	ErrRouterNotFound    = errors.New("router not found for room")
	ErrTransportNotFound = errors.New("transport not found")
	ErrProducerNotFound  = errors.New("producer not found")
	ErrConsumerNotFound  = errors.New("consumer not found")

	// ErrRoomClosed means the room was torn down while its worker and router
	// were still being created; the caller may retry.
	ErrRoomClosed = errors.New("room closed during creation")

	// ErrUnauthorized means the caller-supplied userId/roomId pair does not
	// match the stored ownership metadata of the target resource.
	ErrUnauthorized = errors.New("unauthorized resource access")

	// ErrSelfConsume rejects a user subscribing to their own producer.
	ErrSelfConsume = errors.New("cannot consume own producer")

	// ErrCannotConsume means the router rejected the receiver capabilities.
	ErrCannotConsume = errors.New("incompatible rtp capabilities")
)
