// Package enginetest is a deterministic in-memory media engine for tests.
// It honors the engine capability contract, including close cascades:
// closing a transport signals its producers and consumers, and closing a
// producer signals its consumers.
package enginetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/mediactl/internal/core"
	"github.com/dkeye/mediactl/internal/domain"
	"github.com/google/uuid"
)

var errRefused = errors.New("engine refused")

type Engine struct {
	// Failure switches, set by tests before the operation under test.
	FailWorker    bool
	FailRouter    bool
	FailTransport bool
	FailProduce   bool
	FailConsume   bool
	// FailClose makes every Close return an error (teardown must continue).
	FailClose bool
	// CanConsumeFn overrides the default capability check (producer exists).
	CanConsumeFn func(producerID string, caps json.RawMessage) bool

	mu        sync.Mutex
	producers map[string]*Producer
}

func New() *Engine {
	return &Engine{producers: make(map[string]*Producer)}
}

func (e *Engine) NewWorker(_ context.Context, room domain.RoomID) (core.Worker, error) {
	if e.FailWorker {
		return nil, errRefused
	}
	return &Worker{engine: e, Room: room}, nil
}

func (e *Engine) producer(id string) (*Producer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.producers[id]
	return p, ok
}

func (e *Engine) closeErr() error {
	if e.FailClose {
		return errRefused
	}
	return nil
}

type Worker struct {
	engine *Engine
	Room   domain.RoomID

	mu     sync.Mutex
	died   func()
	closed bool
}

func (w *Worker) NewRouter(context.Context) (core.Router, error) {
	if w.engine.FailRouter {
		return nil, errRefused
	}
	return &Router{engine: w.engine}, nil
}

func (w *Worker) OnDied(fn func()) {
	w.mu.Lock()
	w.died = fn
	w.mu.Unlock()
}

// Die simulates an unrecoverable worker crash.
func (w *Worker) Die() {
	w.mu.Lock()
	fn := w.died
	w.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (w *Worker) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return w.engine.closeErr()
}

func (w *Worker) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type Router struct {
	engine *Engine

	mu     sync.Mutex
	closed bool
}

func (r *Router) Capabilities() json.RawMessage {
	return json.RawMessage(`{"codecs":[{"mimeType":"audio/opus"},{"mimeType":"video/VP8"}]}`)
}

func (r *Router) CanConsume(producerID string, caps json.RawMessage) bool {
	if r.engine.CanConsumeFn != nil {
		return r.engine.CanConsumeFn(producerID, caps)
	}
	_, ok := r.engine.producer(producerID)
	return ok
}

func (r *Router) NewTransport(_ context.Context, direction domain.Direction) (core.Transport, error) {
	if r.engine.FailTransport {
		return nil, errRefused
	}
	return &Transport{
		engine:    r.engine,
		id:        uuid.NewString(),
		Direction: direction,
	}, nil
}

func (r *Router) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.engine.closeErr()
}

func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type Transport struct {
	engine    *Engine
	id        string
	Direction domain.Direction

	mu        sync.Mutex
	onClosed  []func()
	security  json.RawMessage
	closed    bool
	producers []*Producer
	consumers []*Consumer
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Info() core.TransportInfo {
	return core.TransportInfo{
		ID:             t.id,
		ICEParameters:  json.RawMessage(`{"usernameFragment":"test","password":"test"}`),
		ICECandidates:  json.RawMessage(`[]`),
		DTLSParameters: json.RawMessage(`{"role":"auto","fingerprints":[]}`),
	}
}

func (t *Transport) Connect(_ context.Context, security json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transport closed")
	}
	t.security = security
	return nil
}

// Connected reports whether Connect has been called.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.security != nil
}

func (t *Transport) Produce(_ context.Context, kind domain.MediaKind, params json.RawMessage) (core.Producer, error) {
	if t.engine.FailProduce {
		return nil, errRefused
	}
	p := &Producer{
		engine: t.engine,
		id:     uuid.NewString(),
		kind:   kind,
		params: params,
	}
	t.mu.Lock()
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	t.engine.mu.Lock()
	t.engine.producers[p.id] = p
	t.engine.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(_ context.Context, producerID string, caps json.RawMessage, paused bool) (core.Consumer, error) {
	if t.engine.FailConsume {
		return nil, errRefused
	}
	p, ok := t.engine.producer(producerID)
	if !ok {
		return nil, errors.New("unknown producer")
	}
	c := &Consumer{
		engine:     t.engine,
		id:         uuid.NewString(),
		kind:       p.kind,
		params:     p.params,
		producerID: producerID,
		paused:     paused,
	}
	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	p.addConsumer(c)
	return c, nil
}

func (t *Transport) OnClosed(fn func()) {
	t.mu.Lock()
	t.onClosed = append(t.onClosed, fn)
	t.mu.Unlock()
}

// FireClosed simulates an externally reported terminal connection state
// (e.g. DTLS closed) without closing the transport in the engine.
func (t *Transport) FireClosed() {
	t.mu.Lock()
	fns := append([]func(){}, t.onClosed...)
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Close cascades: producers and consumers on this transport observe a
// transport-close signal, as the real engine does.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	producers := append([]*Producer(nil), t.producers...)
	consumers := append([]*Consumer(nil), t.consumers...)
	t.mu.Unlock()

	for _, p := range producers {
		p.transportClosed()
	}
	for _, c := range consumers {
		c.transportClosed()
	}
	return t.engine.closeErr()
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type Producer struct {
	engine *Engine
	id     string
	kind   domain.MediaKind
	params json.RawMessage

	mu                sync.Mutex
	onTransportClosed []func()
	closed            bool
	consumers         []*Consumer
}

func (p *Producer) ID() string                  { return p.id }
func (p *Producer) Kind() domain.MediaKind      { return p.kind }
func (p *Producer) Parameters() json.RawMessage { return p.params }

func (p *Producer) OnTransportClosed(fn func()) {
	p.mu.Lock()
	p.onTransportClosed = append(p.onTransportClosed, fn)
	p.mu.Unlock()
}

func (p *Producer) addConsumer(c *Consumer) {
	p.mu.Lock()
	p.consumers = append(p.consumers, c)
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

func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	consumers := append([]*Consumer(nil), p.consumers...)
	p.mu.Unlock()

	p.engine.mu.Lock()
	delete(p.engine.producers, p.id)
	p.engine.mu.Unlock()

	for _, c := range consumers {
		c.producerClosed()
	}
	return p.engine.closeErr()
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type Consumer struct {
	engine     *Engine
	id         string
	kind       domain.MediaKind
	params     json.RawMessage
	producerID string

	mu                sync.Mutex
	onTransportClosed []func()
	onProducerClosed  []func()
	paused            bool
	closed            bool
}

func (c *Consumer) ID() string                  { return c.id }
func (c *Consumer) Kind() domain.MediaKind      { return c.kind }
func (c *Consumer) Parameters() json.RawMessage { return c.params }

func (c *Consumer) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	return nil
}

func (c *Consumer) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	return nil
}

func (c *Consumer) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
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

func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.engine.closeErr()
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
