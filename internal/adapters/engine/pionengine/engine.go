// Package pionengine implements the media-engine capability on pion/webrtc.
// Each room gets a worker holding its own webrtc.API (media engine + setting
// engine), the router routes producer RTP to consumer tracks in-process.
package pionengine

import (
	"context"
	"fmt"

	"github.com/dkeye/mediactl/internal/core"
	"github.com/dkeye/mediactl/internal/domain"
	"github.com/dkeye/mediactl/internal/jsoncodec"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// UDP port range for RTC traffic.
	MinPort uint16
	MaxPort uint16
	// AnnouncedIP is advertised in ICE candidates when the host sits behind
	// NAT. Empty disables the mapping.
	AnnouncedIP string
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) NewWorker(_ context.Context, room domain.RoomID) (core.Worker, error) {
	se := webrtc.SettingEngine{}
	if e.cfg.MinPort != 0 || e.cfg.MaxPort != 0 {
		if err := se.SetEphemeralUDPPortRange(e.cfg.MinPort, e.cfg.MaxPort); err != nil {
			return nil, fmt.Errorf("set port range: %w", err)
		}
	}
	if e.cfg.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{e.cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}
	me := &webrtc.MediaEngine{}
	for _, c := range mediaCodecs {
		if err := me.RegisterCodec(c.params, c.typ); err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c.params.MimeType, err)
		}
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(se))
	log.Info().Str("module", "pionengine").Str("room", string(room)).Msg("worker created")
	return &Worker{api: api, room: room}, nil
}

type Worker struct {
	api  *webrtc.API
	room domain.RoomID
	died func()
}

func (w *Worker) NewRouter(context.Context) (core.Router, error) {
	caps, err := capabilitiesJSON()
	if err != nil {
		return nil, err
	}
	return newRouter(w.api, w.room, caps), nil
}

// OnDied registers the failure callback. The pion engine runs in-process,
// so there is no separate worker process that can die; the callback is kept
// for contract symmetry and never fires.
func (w *Worker) OnDied(fn func()) { w.died = fn }

func (w *Worker) Close() error { return nil }

type codecEntry struct {
	params webrtc.RTPCodecParameters
	typ    webrtc.RTPCodecType
}

// mediaCodecs mirrors the codec set the control protocol advertises:
// opus for audio, VP8/VP9/H264 for video.
var mediaCodecs = []codecEntry{
	{
		params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			PayloadType:        96,
		},
		typ: webrtc.RTPCodecTypeAudio,
	},
	{
		params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			PayloadType:        97,
		},
		typ: webrtc.RTPCodecTypeVideo,
	},
	{
		params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=2"},
			PayloadType:        99,
		},
		typ: webrtc.RTPCodecTypeVideo,
	},
	{
		params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeH264,
				ClockRate:   90000,
				SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			},
			PayloadType: 103,
		},
		typ: webrtc.RTPCodecTypeVideo,
	},
}

type codecCapability struct {
	Kind                 string `json:"kind"`
	MimeType             string `json:"mimeType"`
	ClockRate            uint32 `json:"clockRate"`
	Channels             uint16 `json:"channels,omitempty"`
	Parameters           string `json:"parameters,omitempty"`
	PreferredPayloadType uint8  `json:"preferredPayloadType"`
}

func capabilitiesJSON() ([]byte, error) {
	out := make([]codecCapability, 0, len(mediaCodecs))
	for _, c := range mediaCodecs {
		kind := "video"
		if c.typ == webrtc.RTPCodecTypeAudio {
			kind = "audio"
		}
		out = append(out, codecCapability{
			Kind:                 kind,
			MimeType:             c.params.MimeType,
			ClockRate:            c.params.ClockRate,
			Channels:             c.params.Channels,
			Parameters:           c.params.SDPFmtpLine,
			PreferredPayloadType: uint8(c.params.PayloadType),
		})
	}
	return jsoncodec.Marshal(struct {
		Codecs []codecCapability `json:"codecs"`
	}{Codecs: out})
}

// capabilityForKind picks the primary codec advertised for a kind; consumer
// tracks are created with it.
func capabilityForKind(kind domain.MediaKind) webrtc.RTPCodecCapability {
	want := webrtc.RTPCodecTypeVideo
	if kind == domain.MediaKindAudio {
		want = webrtc.RTPCodecTypeAudio
	}
	for _, c := range mediaCodecs {
		if c.typ == want {
			return c.params.RTPCodecCapability
		}
	}
	return webrtc.RTPCodecCapability{}
}
