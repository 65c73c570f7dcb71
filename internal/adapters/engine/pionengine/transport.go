package pionengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/mediactl/internal/core"
	"github.com/dkeye/mediactl/internal/domain"
	"github.com/dkeye/mediactl/internal/jsoncodec"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Transport wraps one PeerConnection. Send transports receive the user's
// media (the server is the receiving end of a published track); recv
// transports carry consumer tracks out to the user.
type Transport struct {
	router    *Router
	id        string
	direction domain.Direction
	pc        *webrtc.PeerConnection

	mu        sync.Mutex
	onClosed  []func()
	producers []*Producer
	consumers []*Consumer
	local     *webrtc.SessionDescription
	closed    bool
	terminal  bool
}

func (t *Transport) init() error {
	t.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().
			Str("module", "pionengine").
			Str("transport", t.id).
			Str("peer_connection_state", s.String()).
			Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			t.fireClosed()
		}
	})
	t.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "pionengine").
			Str("transport", t.id).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		t.router.bindTrack(t, track)
	})

	// Pre-allocate one slot per kind so the initial offer carries media
	// sections in both cases: recvonly on send transports, sendonly on
	// recv transports (AddTrack reuses these for consumers).
	dir := webrtc.RTPTransceiverDirectionRecvonly
	if t.direction == domain.DirectionRecv {
		dir = webrtc.RTPTransceiverDirectionSendonly
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := t.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: dir}); err != nil {
			return fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}

	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	t.mu.Lock()
	t.local = t.pc.LocalDescription()
	t.mu.Unlock()
	return nil
}

func (t *Transport) ID() string { return t.id }

// Info returns the local session description as the transport's security
// parameters: the SDP carries the ICE candidates and DTLS fingerprints the
// peer needs.
func (t *Transport) Info() core.TransportInfo {
	t.mu.Lock()
	local := t.local
	t.mu.Unlock()
	desc, err := jsoncodec.Marshal(local)
	if err != nil {
		log.Error().Err(err).Str("module", "pionengine").Str("transport", t.id).Msg("encode local description")
		return core.TransportInfo{ID: t.id}
	}
	return core.TransportInfo{ID: t.id, DTLSParameters: desc}
}

// Connect applies the peer's answer.
func (t *Transport) Connect(_ context.Context, security json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := jsoncodec.Unmarshal(security, &answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (t *Transport) Produce(_ context.Context, kind domain.MediaKind, rtpParameters json.RawMessage) (core.Producer, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport %s closed", t.id)
	}
	if t.direction != domain.DirectionSend {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport %s is not a send transport", t.id)
	}
	p := &Producer{
		transport: t,
		id:        uuid.NewString(),
		kind:      kind,
		params:    rtpParameters,
		consumers: make(map[string]*Consumer),
	}
	t.producers = append(t.producers, p)
	t.mu.Unlock()

	t.router.registerProducer(p)
	return p, nil
}

// pendingProducer returns the oldest producer of the kind still waiting for
// its remote track.
func (t *Transport) pendingProducer(kind domain.MediaKind) *Producer {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.producers {
		if p.kind == kind && !p.bound() {
			return p
		}
	}
	return nil
}

func (t *Transport) Consume(_ context.Context, producerID string, rtpCapabilities json.RawMessage, paused bool) (core.Consumer, error) {
	p, ok := t.router.producer(producerID)
	if !ok {
		return nil, fmt.Errorf("producer %s not found", producerID)
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport %s closed", t.id)
	}
	if t.direction != domain.DirectionRecv {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport %s is not a recv transport", t.id)
	}
	t.mu.Unlock()

	capability := capabilityForKind(p.kind)
	track, err := webrtc.NewTrackLocalStaticRTP(capability, uuid.NewString(), "mediactl")
	if err != nil {
		return nil, fmt.Errorf("new local track: %w", err)
	}
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("add track: %w", err)
	}

	params, err := jsoncodec.Marshal(consumerParameters{
		MimeType:  capability.MimeType,
		ClockRate: capability.ClockRate,
		Channels:  capability.Channels,
		TrackID:   track.ID(),
		StreamID:  track.StreamID(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode consumer parameters: %w", err)
	}

	c := &Consumer{
		transport:  t,
		producer:   p,
		id:         uuid.NewString(),
		kind:       p.kind,
		producerID: producerID,
		params:     params,
		track:      track,
		sender:     sender,
	}
	if paused {
		c.state.Store(statePaused)
	}
	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	p.addConsumer(c)
	return c, nil
}

type consumerParameters struct {
	MimeType  string `json:"mimeType"`
	ClockRate uint32 `json:"clockRate"`
	Channels  uint16 `json:"channels,omitempty"`
	TrackID   string `json:"trackId"`
	StreamID  string `json:"streamId"`
}

func (t *Transport) OnClosed(fn func()) {
	t.mu.Lock()
	t.onClosed = append(t.onClosed, fn)
	t.mu.Unlock()
}

// fireClosed reports a terminal connection state exactly once.
func (t *Transport) fireClosed() {
	t.mu.Lock()
	if t.terminal {
		t.mu.Unlock()
		return
	}
	t.terminal = true
	fns := append([]func(){}, t.onClosed...)
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Close shuts the PeerConnection down and signals transport-close to every
// producer and consumer living on it.
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
	if err := t.pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}
