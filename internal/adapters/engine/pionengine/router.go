package pionengine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/dkeye/mediactl/internal/core"
	"github.com/dkeye/mediactl/internal/domain"
	"github.com/dkeye/mediactl/internal/jsoncodec"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Router struct {
	api  *webrtc.API
	room domain.RoomID
	caps json.RawMessage

	mu        sync.RWMutex
	producers map[string]*Producer
	closed    bool
}

func newRouter(api *webrtc.API, room domain.RoomID, caps json.RawMessage) *Router {
	return &Router{
		api:       api,
		room:      room,
		caps:      caps,
		producers: make(map[string]*Producer),
	}
}

func (r *Router) Capabilities() json.RawMessage { return r.caps }

// CanConsume requires the producer to exist and the receiver to advertise at
// least one codec of the producer's kind.
func (r *Router) CanConsume(producerID string, rtpCapabilities json.RawMessage) bool {
	r.mu.RLock()
	p, ok := r.producers[producerID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	var caps struct {
		Codecs []struct {
			MimeType string `json:"mimeType"`
		} `json:"codecs"`
	}
	if err := jsoncodec.Unmarshal(rtpCapabilities, &caps); err != nil {
		return false
	}
	for _, c := range caps.Codecs {
		if strings.HasPrefix(strings.ToLower(c.MimeType), string(p.kind)+"/") {
			return true
		}
	}
	return false
}

func (r *Router) NewTransport(_ context.Context, direction domain.Direction) (core.Transport, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("router closed for room %s", r.room)
	}
	pc, err := r.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	t := &Transport{
		router:    r,
		id:        uuid.NewString(),
		direction: direction,
		pc:        pc,
	}
	if err := t.init(); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return t, nil
}

func (r *Router) registerProducer(p *Producer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *Router) unregisterProducer(id string) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *Router) producer(id string) (*Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}

// bindTrack attaches an incoming remote track to the oldest producer of the
// same kind still waiting for media, and starts its relay loop.
func (r *Router) bindTrack(t *Transport, track *webrtc.TrackRemote) {
	kind := domain.MediaKindAudio
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		kind = domain.MediaKindVideo
	}
	p := t.pendingProducer(kind)
	if p == nil {
		log.Warn().
			Str("module", "pionengine").
			Str("room", string(r.room)).
			Str("transport", t.id).
			Str("kind", string(kind)).
			Msg("remote track without a waiting producer")
		return
	}
	p.bind(track)
}

func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	producers := make([]*Producer, 0, len(r.producers))
	for _, p := range r.producers {
		producers = append(producers, p)
	}
	r.mu.Unlock()

	for _, p := range producers {
		_ = p.Close()
	}
	log.Info().Str("module", "pionengine").Str("room", string(r.room)).Msg("router closed")
	return nil
}
