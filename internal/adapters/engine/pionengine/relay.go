package pionengine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/mediactl/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	stateActive int32 = iota
	statePaused
	stateStale
)

// Producer is a published track. It is created by Produce before the remote
// track arrives; bind attaches the track and starts the relay loop that fans
// RTP out to consumers.
type Producer struct {
	transport *Transport
	id        string
	kind      domain.MediaKind
	params    json.RawMessage

	mu                sync.Mutex
	onTransportClosed []func()
	consumers         map[string]*Consumer
	track             *webrtc.TrackRemote
	cancel            context.CancelFunc
	closed            bool
}

func (p *Producer) ID() string                  { return p.id }
func (p *Producer) Kind() domain.MediaKind      { return p.kind }
func (p *Producer) Parameters() json.RawMessage { return p.params }

func (p *Producer) OnTransportClosed(fn func()) {
	p.mu.Lock()
	p.onTransportClosed = append(p.onTransportClosed, fn)
	p.mu.Unlock()
}

func (p *Producer) bound() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track != nil
}

func (p *Producer) addConsumer(c *Consumer) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.state.Store(stateStale)
		return
	}
	p.consumers[c.id] = c
	p.mu.Unlock()
}

func (p *Producer) dropConsumer(id string) {
	p.mu.Lock()
	delete(p.consumers, id)
	p.mu.Unlock()
}

// bind attaches the remote track and starts relaying.
func (p *Producer) bind(track *webrtc.TrackRemote) {
	p.mu.Lock()
	if p.closed || p.track != nil {
		p.mu.Unlock()
		return
	}
	p.track = track
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	logger := log.With().
		Str("module", "pionengine").
		Str("producer", p.id).
		Str("kind", string(p.kind)).
		Logger()
	go p.loop(ctx, track, logger)
}

func (p *Producer) loop(ctx context.Context, track *webrtc.TrackRemote, logger zerolog.Logger) {
	logger.Info().Msg("relay started")
	defer logger.Info().Msg("relay stopped")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Error().Err(err).Msg("read rtp")
			}
			return
		}
		p.forward(pkt, logger)
	}
}

// forward writes the packet to every active consumer. Consumers whose sink
// erred are marked stale and swept after the pass.
func (p *Producer) forward(pkt *rtp.Packet, logger zerolog.Logger) {
	p.mu.Lock()
	targets := make([]*Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		targets = append(targets, c)
	}
	p.mu.Unlock()

	var stale []string
	for _, c := range targets {
		switch c.state.Load() {
		case statePaused:
			continue
		case stateStale:
			stale = append(stale, c.id)
			continue
		}
		if err := c.track.WriteRTP(pkt); err != nil {
			logger.Error().Err(err).Str("consumer", c.id).Msg("write rtp")
			c.state.Store(stateStale)
			stale = append(stale, c.id)
		}
	}
	if len(stale) == 0 {
		return
	}
	p.mu.Lock()
	for _, id := range stale {
		delete(p.consumers, id)
	}
	p.mu.Unlock()
}

func (p *Producer) transportClosed() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	fns := append([]func(){}, p.onTransportClosed...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Close stops the relay, deregisters from the router and signals
// producer-close to the consumers still attached.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	consumers := make([]*Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		consumers = append(consumers, c)
	}
	p.consumers = make(map[string]*Consumer)
	p.mu.Unlock()

	p.transport.router.unregisterProducer(p.id)
	for _, c := range consumers {
		c.producerClosed()
	}
	return nil
}

// Consumer is an outgoing track fed by one producer's relay loop.
type Consumer struct {
	transport  *Transport
	producer   *Producer
	id         string
	kind       domain.MediaKind
	producerID string
	params     json.RawMessage
	track      *webrtc.TrackLocalStaticRTP
	sender     *webrtc.RTPSender

	state atomic.Int32

	mu                sync.Mutex
	onTransportClosed []func()
	onProducerClosed  []func()
	closed            bool
}

func (c *Consumer) ID() string                  { return c.id }
func (c *Consumer) Kind() domain.MediaKind      { return c.kind }
func (c *Consumer) Parameters() json.RawMessage { return c.params }

func (c *Consumer) Pause() error {
	c.state.CompareAndSwap(stateActive, statePaused)
	return nil
}

func (c *Consumer) Resume() error {
	c.state.CompareAndSwap(statePaused, stateActive)
	return nil
}

func (c *Consumer) OnTransportClosed(fn func()) {
	c.mu.Lock()
	c.onTransportClosed = append(c.onTransportClosed, fn)
	c.mu.Unlock()
}

func (c *Consumer) OnProducerClosed(fn func()) {
	c.mu.Lock()
	c.onProducerClosed = append(c.onProducerClosed, fn)
	c.mu.Unlock()
}

func (c *Consumer) transportClosed() {
	c.fire(func() []func() { return c.onTransportClosed })
}

func (c *Consumer) producerClosed() {
	c.fire(func() []func() { return c.onProducerClosed })
}

func (c *Consumer) fire(pick func() []func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fns := append([]func(){}, pick()...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Close detaches the consumer from the relay and removes its sender from the
// PeerConnection.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.state.Store(stateStale)
	c.producer.dropConsumer(c.id)
	if err := c.transport.pc.RemoveTrack(c.sender); err != nil {
		log.Debug().Err(err).Str("module", "pionengine").Str("consumer", c.id).Msg("remove track")
	}
	return nil
}
