// Package membus is an in-memory core.Bus for single-process use and tests.
// Delivery is per-channel fan-out to every live subscriber.
package membus

import (
	"context"
	"sync"

	"github.com/dkeye/mediactl/internal/core"
)

type subscription struct {
	ch   chan core.Message
	done <-chan struct{}
}

type Bus struct {
	mu   sync.RWMutex
	subs map[string][]*subscription
}

func New() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	list := make([]*subscription, len(b.subs[channel]))
	copy(list, b.subs[channel])
	b.mu.RUnlock()

	msg := core.Message{Channel: channel, Payload: payload}
	for _, s := range list {
		select {
		case s.ch <- msg:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, channels ...string) (<-chan core.Message, error) {
	sub := &subscription{
		ch:   make(chan core.Message, 64),
		done: ctx.Done(),
	}
	b.mu.Lock()
	for _, c := range channels {
		b.subs[c] = append(b.subs[c], sub)
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for _, c := range channels {
			list := b.subs[c]
			for i, s := range list {
				if s == sub {
					b.subs[c] = append(list[:i], list[i+1:]...)
					break
				}
			}
			if len(b.subs[c]) == 0 {
				delete(b.subs, c)
			}
		}
		b.mu.Unlock()
		close(sub.ch)
	}()
	return sub.ch, nil
}
