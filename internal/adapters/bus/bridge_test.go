package bus

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/mediactl/internal/adapters/bus/membus"
	"github.com/dkeye/mediactl/internal/adapters/engine/enginetest"
	"github.com/dkeye/mediactl/internal/app/session"
	"github.com/dkeye/mediactl/internal/core"
	"github.com/dkeye/mediactl/internal/jsoncodec"
)

const testCaps = `{"codecs":[{"mimeType":"audio/opus"},{"mimeType":"video/VP8"}]}`

type harness struct {
	t       *testing.T
	ctx     context.Context
	bus     *membus.Bus
	mgr     *session.Manager
	replies <-chan core.Message
}

func newHarness(t *testing.T, prefix string) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	b := membus.New()
	mgr := session.NewManager(enginetest.New())
	go mgr.Run(ctx)

	responses := []string{
		prefix + ChannelRespGetCapabilities,
		prefix + ChannelRespCreateSendTransport,
		prefix + ChannelRespCreateRecvTransport,
		prefix + ChannelRespConnectTransport,
		prefix + ChannelRespCreateProducer,
		prefix + ChannelRespCreateConsumer,
	}
	replies, err := b.Subscribe(ctx, responses...)
	if err != nil {
		t.Fatalf("subscribe to responses: %v", err)
	}

	bridge := NewBridge(b, mgr, prefix)
	go func() {
		if err := bridge.Run(ctx); err != nil {
			t.Errorf("bridge run: %v", err)
		}
	}()
	// Let the bridge's subscription land before tests publish.
	time.Sleep(10 * time.Millisecond)

	return &harness{t: t, ctx: ctx, bus: b, mgr: mgr, replies: replies}
}

func (h *harness) request(channel string, v any) {
	h.t.Helper()
	payload, err := jsoncodec.Marshal(v)
	if err != nil {
		h.t.Fatalf("encode request: %v", err)
	}
	if err := h.bus.Publish(h.ctx, channel, payload); err != nil {
		h.t.Fatalf("publish %s: %v", channel, err)
	}
}

func (h *harness) await(channel string, out any) {
	h.t.Helper()
	for {
		select {
		case msg := <-h.replies:
			if msg.Channel != channel {
				h.t.Fatalf("got message on %s while waiting for %s", msg.Channel, channel)
			}
			if err := jsoncodec.Unmarshal(msg.Payload, out); err != nil {
				h.t.Fatalf("decode response on %s: %v", channel, err)
			}
			return
		case <-time.After(2 * time.Second):
			h.t.Fatalf("no response on %s", channel)
		}
	}
}

func (h *harness) awaitSilence() {
	h.t.Helper()
	select {
	case msg := <-h.replies:
		h.t.Fatalf("unexpected response on %s: %s", msg.Channel, msg.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCapabilitiesOpensRoom(t *testing.T) {
	h := newHarness(t, "")

	h.request(ChannelGetCapabilities, GetCapabilitiesRequest{RoomID: "room-1", UserID: "alice"})

	var resp GetCapabilitiesResponse
	h.await(ChannelRespGetCapabilities, &resp)
	if resp.UserID != "alice" {
		t.Errorf("userId = %q, want alice", resp.UserID)
	}
	if len(resp.RtpCapabilities) == 0 {
		t.Error("empty rtpCapabilities")
	}
	if _, ok := h.mgr.RouterCapabilities("room-1"); !ok {
		t.Error("room not created by capabilities request")
	}
}

func TestCreateRouterHasNoResponse(t *testing.T) {
	h := newHarness(t, "")

	h.request(ChannelCreateRouter, CreateRouterRequest{RoomID: "room-1", UserID: "alice"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := h.mgr.RouterCapabilities("room-1"); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := h.mgr.RouterCapabilities("room-1"); !ok {
		t.Fatal("room not created")
	}
	h.awaitSilence()
}

func TestFullSessionOverBus(t *testing.T) {
	h := newHarness(t, "")

	h.request(ChannelGetCapabilities, GetCapabilitiesRequest{RoomID: "room-1", UserID: "alice"})
	var caps GetCapabilitiesResponse
	h.await(ChannelRespGetCapabilities, &caps)

	h.request(ChannelCreateSendTransport, CreateSendTransportRequest{RoomID: "room-1", UserID: "alice"})
	var send CreateSendTransportResponse
	h.await(ChannelRespCreateSendTransport, &send)
	if send.TransportOptions.ID == "" {
		t.Fatal("send transport has no id")
	}

	h.request(ChannelConnectTransport, ConnectTransportRequest{
		TransportID:    send.TransportOptions.ID,
		UserID:         "alice",
		UserType:       "publisher",
		DtlsParameters: `{"role":"client"}`,
	})
	var conn ConnectTransportResponse
	h.await(ChannelRespConnectTransport, &conn)
	if conn.UserType != "publisher" {
		t.Errorf("userType = %q", conn.UserType)
	}

	h.request(ChannelCreateProducer, CreateProducerRequest{
		RoomID:        "room-1",
		UserID:        "alice",
		TransportID:   send.TransportOptions.ID,
		Kind:          "audio",
		RtpParameters: `{}`,
		SessionID:     "sess-1",
	})
	var prod CreateProducerResponse
	h.await(ChannelRespCreateProducer, &prod)
	if prod.ID == "" || prod.Kind != "audio" || prod.SessionID != "sess-1" {
		t.Fatalf("producer response = %+v", prod)
	}

	h.request(ChannelCreateRecvTransport, CreateRecvTransportRequest{RoomID: "room-1", UserID: "bob", SessionID: "sess-2"})
	var recv CreateRecvTransportResponse
	h.await(ChannelRespCreateRecvTransport, &recv)
	if recv.SessionID != "sess-2" {
		t.Errorf("sessionId = %q", recv.SessionID)
	}

	h.request(ChannelCreateConsumer, CreateConsumerRequest{
		RoomID:          "room-1",
		UserID:          "bob",
		TransportID:     recv.TransportOptions.ID,
		ProducerID:      prod.ID,
		RtpCapabilities: testCaps,
		Kind:            "audio",
		ParticipantID:   "part-7",
		UserName:        "Bob",
	})
	var cons CreateConsumerResponse
	h.await(ChannelRespCreateConsumer, &cons)
	if cons.ProducerID != prod.ID || cons.Kind != "audio" {
		t.Fatalf("consumer response = %+v", cons)
	}
	if cons.ParticipantID != "part-7" || cons.UserName != "Bob" {
		t.Fatalf("consumer response dropped caller fields: %+v", cons)
	}

	// Pause and resume carry no response; observe the state instead.
	h.request(ChannelPause, PauseRequest{ConsumerID: cons.ID})
	waitFor(t, "consumer paused", func() bool { return consumerPaused(h.mgr, cons.ID) })
	h.request(ChannelResume, ResumeRequest{ConsumerID: cons.ID})
	waitFor(t, "consumer resumed", func() bool { return !consumerPaused(h.mgr, cons.ID) })

	h.request(ChannelUserDisconnect, UserDisconnectRequest{UserID: "bob", RoomID: "room-1"})
	waitFor(t, "bob cleaned up", func() bool {
		s := h.mgr.UserStats("bob")
		return s.Transports == 0 && s.Producers == 0
	})
	if s := h.mgr.UserStats("alice"); s.Transports != 1 || s.Producers != 1 {
		t.Fatalf("alice affected by bob's disconnect: %+v", s)
	}

	h.request(ChannelSessionEnd, SessionEndRequest{RoomID: "room-1"})
	waitFor(t, "room torn down", func() bool {
		s := h.mgr.RoomStats("room-1")
		return !s.HasRouter && s.Transports == 0 && s.Producers == 0 && s.Consumers == 0
	})
}

func TestChannelPrefix(t *testing.T) {
	h := newHarness(t, "prod:")

	h.request("prod:"+ChannelGetCapabilities, GetCapabilitiesRequest{RoomID: "room-1", UserID: "alice"})

	var resp GetCapabilitiesResponse
	h.await("prod:"+ChannelRespGetCapabilities, &resp)
	if resp.UserID != "alice" {
		t.Errorf("userId = %q", resp.UserID)
	}
}

func TestInvalidKindIsDroppedSilently(t *testing.T) {
	h := newHarness(t, "")

	h.request(ChannelGetCapabilities, GetCapabilitiesRequest{RoomID: "room-1", UserID: "alice"})
	var caps GetCapabilitiesResponse
	h.await(ChannelRespGetCapabilities, &caps)

	h.request(ChannelCreateSendTransport, CreateSendTransportRequest{RoomID: "room-1", UserID: "alice"})
	var send CreateSendTransportResponse
	h.await(ChannelRespCreateSendTransport, &send)

	h.request(ChannelCreateProducer, CreateProducerRequest{
		RoomID:        "room-1",
		UserID:        "alice",
		TransportID:   send.TransportOptions.ID,
		Kind:          "screen",
		RtpParameters: `{}`,
	})
	h.awaitSilence()
	if s := h.mgr.RoomStats("room-1"); s.Producers != 0 {
		t.Fatalf("producer created from invalid kind: %+v", s)
	}
}

func TestFailedRequestPublishesNothing(t *testing.T) {
	h := newHarness(t, "")

	// No room exists, so the transport request fails inside the manager.
	h.request(ChannelCreateSendTransport, CreateSendTransportRequest{RoomID: "ghost", UserID: "alice"})
	h.awaitSilence()
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	h := newHarness(t, "")

	if err := h.bus.Publish(h.ctx, ChannelGetCapabilities, []byte("not json")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	h.awaitSilence()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func consumerPaused(mgr *session.Manager, id string) bool {
	type pausable interface{ IsPaused() bool }
	c, ok := mgr.Consumer(id)
	if !ok {
		return false
	}
	p, ok := c.(pausable)
	return ok && p.IsPaused()
}
