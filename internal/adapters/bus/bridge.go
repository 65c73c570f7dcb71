package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dkeye/mediactl/internal/app/session"
	"github.com/dkeye/mediactl/internal/core"
	"github.com/dkeye/mediactl/internal/domain"
	"github.com/dkeye/mediactl/internal/jsoncodec"
	"github.com/dkeye/mediactl/internal/observe"
	"github.com/rs/zerolog/log"
)

type Bridge struct {
	bus    core.Bus
	mgr    *session.Manager
	prefix string
}

func NewBridge(b core.Bus, mgr *session.Manager, prefix string) *Bridge {
	return &Bridge{bus: b, mgr: mgr, prefix: prefix}
}

func (b *Bridge) channel(name string) string { return b.prefix + name }

// Run subscribes to all request channels and dispatches until ctx is done.
// Messages on different channels are handled concurrently; per-resource
// safety comes from the registry locks, not from dispatch ordering.
func (b *Bridge) Run(ctx context.Context) error {
	names := RequestChannels()
	channels := make([]string, len(names))
	for i, n := range names {
		channels[i] = b.channel(n)
	}
	msgs, err := b.bus.Subscribe(ctx, channels...)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Info().Str("module", "bus").Int("channels", len(channels)).Msg("bridge subscribed")
	for msg := range msgs {
		go b.dispatch(ctx, msg)
	}
	return nil
}

func (b *Bridge) dispatch(ctx context.Context, msg core.Message) {
	name := strings.TrimPrefix(msg.Channel, b.prefix)
	observe.BridgeRequests.WithLabelValues(name).Inc()

	var err error
	switch name {
	case ChannelCreateRouter:
		err = b.onCreateRouter(ctx, msg.Payload)
	case ChannelGetCapabilities:
		err = b.onGetCapabilities(ctx, msg.Payload)
	case ChannelCreateSendTransport:
		err = b.onCreateSendTransport(ctx, msg.Payload)
	case ChannelCreateRecvTransport:
		err = b.onCreateRecvTransport(ctx, msg.Payload)
	case ChannelConnectTransport:
		err = b.onConnectTransport(ctx, msg.Payload)
	case ChannelCreateProducer:
		err = b.onCreateProducer(ctx, msg.Payload)
	case ChannelCreateConsumer:
		err = b.onCreateConsumer(ctx, msg.Payload)
	case ChannelPause:
		err = b.onPause(msg.Payload)
	case ChannelResume:
		err = b.onResume(msg.Payload)
	case ChannelUserDisconnect:
		err = b.onUserDisconnect(msg.Payload)
	case ChannelSessionEnd:
		err = b.onSessionEnd(msg.Payload)
	default:
		log.Warn().Str("module", "bus").Str("channel", msg.Channel).Msg("message on unexpected channel")
		return
	}
	if err != nil {
		// No error channel exists on the wire: log with context, count,
		// publish nothing. The caller times out.
		observe.BridgeFailures.WithLabelValues(name).Inc()
		log.Error().
			Err(err).
			Str("module", "bus").
			Str("channel", name).
			Str("payload", string(msg.Payload)).
			Msg("request failed, no response published")
	}
}

func (b *Bridge) publish(ctx context.Context, name string, v any) error {
	payload, err := jsoncodec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := b.bus.Publish(ctx, b.channel(name), payload); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}

// onCreateRouter ensures the room's worker and router exist. The protocol
// defines no response for it; callers follow up with a capabilities request.
func (b *Bridge) onCreateRouter(ctx context.Context, payload []byte) error {
	var req CreateRouterRequest
	if err := jsoncodec.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	_, err := b.mgr.EnsureRouter(ctx, req.RoomID)
	return err
}

// onGetCapabilities lazily creates the room on its first request, the same
// way the first capabilities exchange opens a room for a joining client.
func (b *Bridge) onGetCapabilities(ctx context.Context, payload []byte) error {
	var req GetCapabilitiesRequest
	if err := jsoncodec.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	router, err := b.mgr.EnsureRouter(ctx, req.RoomID)
	if err != nil {
		return err
	}
	return b.publish(ctx, ChannelRespGetCapabilities, GetCapabilitiesResponse{
		UserID:          req.UserID,
		RtpCapabilities: router.Capabilities(),
	})
}

func (b *Bridge) onCreateSendTransport(ctx context.Context, payload []byte) error {
	var req CreateSendTransportRequest
	if err := jsoncodec.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	info, err := b.mgr.CreateTransport(ctx, req.RoomID, req.UserID, domain.DirectionSend)
	if err != nil {
		return err
	}
	return b.publish(ctx, ChannelRespCreateSendTransport, CreateSendTransportResponse{
		UserID:           req.UserID,
		TransportOptions: info,
	})
}

func (b *Bridge) onCreateRecvTransport(ctx context.Context, payload []byte) error {
	var req CreateRecvTransportRequest
	if err := jsoncodec.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	info, err := b.mgr.CreateTransport(ctx, req.RoomID, req.UserID, domain.DirectionRecv)
	if err != nil {
		return err
	}
	return b.publish(ctx, ChannelRespCreateRecvTransport, CreateRecvTransportResponse{
		UserID:           req.UserID,
		RoomID:           req.RoomID,
		SessionID:        req.SessionID,
		TransportOptions: info,
	})
}

func (b *Bridge) onConnectTransport(ctx context.Context, payload []byte) error {
	var req ConnectTransportRequest
	if err := jsoncodec.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := b.mgr.ConnectTransport(ctx, req.TransportID, json.RawMessage(req.DtlsParameters)); err != nil {
		return err
	}
	return b.publish(ctx, ChannelRespConnectTransport, ConnectTransportResponse{
		UserID:   req.UserID,
		UserType: req.UserType,
	})
}

func (b *Bridge) onCreateProducer(ctx context.Context, payload []byte) error {
	var req CreateProducerRequest
	if err := jsoncodec.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	kind, err := domain.ParseMediaKind(req.Kind)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	info, err := b.mgr.CreateProducer(ctx, req.RoomID, req.UserID, req.TransportID, kind, json.RawMessage(req.RtpParameters))
	if err != nil {
		return err
	}
	return b.publish(ctx, ChannelRespCreateProducer, CreateProducerResponse{
		UserID:        req.UserID,
		RoomID:        req.RoomID,
		ID:            info.ID,
		Kind:          info.Kind,
		RtpParameters: string(info.RtpParameters),
		SessionID:     req.SessionID,
		AppData:       req.AppData,
	})
}

func (b *Bridge) onCreateConsumer(ctx context.Context, payload []byte) error {
	var req CreateConsumerRequest
	if err := jsoncodec.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if _, err := domain.ParseMediaKind(req.Kind); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	info, err := b.mgr.CreateConsumer(ctx, req.RoomID, req.UserID, req.TransportID, req.ProducerID, json.RawMessage(req.RtpCapabilities))
	if err != nil {
		return err
	}
	return b.publish(ctx, ChannelRespCreateConsumer, CreateConsumerResponse{
		UserID:        req.UserID,
		RoomID:        req.RoomID,
		ID:            info.ID,
		ProducerID:    info.ProducerID,
		Kind:          info.Kind,
		RtpParameters: string(info.RtpParameters),
		SessionID:     req.SessionID,
		ParticipantID: req.ParticipantID,
		UserName:      req.UserName,
		AppData:       req.AppData,
	})
}

func (b *Bridge) onPause(payload []byte) error {
	var req PauseRequest
	if err := jsoncodec.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return b.mgr.PauseConsumer(req.ConsumerID)
}

func (b *Bridge) onResume(payload []byte) error {
	var req ResumeRequest
	if err := jsoncodec.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return b.mgr.ResumeConsumer(req.ConsumerID)
}

func (b *Bridge) onUserDisconnect(payload []byte) error {
	var req UserDisconnectRequest
	if err := jsoncodec.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	b.mgr.CleanupUserFromRoom(req.UserID, req.RoomID)
	return nil
}

func (b *Bridge) onSessionEnd(payload []byte) error {
	var req SessionEndRequest
	if err := jsoncodec.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	b.mgr.CleanupRoom(req.RoomID)
	return nil
}
