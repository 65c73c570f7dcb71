package core

import "context"

// Message is one inbound control message.
type Message struct {
	Channel string
	Payload []byte
}

// Bus abstracts the control message bus as a reliable publish/subscribe
// primitive. Connection setup, retry and framing live behind this interface.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of inbound messages for the given bus
	// channels. The returned channel is closed when ctx is done.
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)
}
