// Package redisbus implements core.Bus on Redis pub/sub. Publisher and
// subscriber use separate connections, as Redis requires once a connection
// enters subscribe mode.
package redisbus

import (
	"context"

	"github.com/dkeye/mediactl/internal/core"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Addr is used to build default clients when none are supplied.
	Addr string
	// Publisher and Subscriber override the default clients.
	Publisher  redis.UniversalClient
	Subscriber redis.UniversalClient
}

type Bus struct {
	pub redis.UniversalClient
	sub redis.UniversalClient
}

func New(cfg Config) *Bus {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = redis.NewClient(&redis.Options{Addr: addr})
	}
	sub := cfg.Subscriber
	if sub == nil {
		sub = redis.NewClient(&redis.Options{Addr: addr})
	}
	return &Bus{pub: pub, sub: sub}
}

func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.pub.Publish(ctx, channel, payload).Err()
}

func (b *Bus) Subscribe(ctx context.Context, channels ...string) (<-chan core.Message, error) {
	ps := b.sub.Subscribe(ctx, channels...)
	// Confirm the subscription before reporting success.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	out := make(chan core.Message, 64)
	go func() {
		defer close(out)
		defer func() {
			if err := ps.Close(); err != nil {
				log.Error().Err(err).Str("module", "redisbus").Msg("close subscription")
			}
		}()
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				out <- core.Message{Channel: m.Channel, Payload: []byte(m.Payload)}
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	if err := b.pub.Close(); err != nil {
		return err
	}
	return b.sub.Close()
}
