package bus

import (
	"encoding/json"

	"github.com/dkeye/mediactl/internal/core"
	"github.com/dkeye/mediactl/internal/domain"
)

// Request and response payloads. Nested parameter blobs (rtpParameters,
// rtpCapabilities, dtlsParameters) travel as JSON-encoded strings, matching
// the callers on the other side of the bus.

type GetCapabilitiesRequest struct {
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}

type GetCapabilitiesResponse struct {
	UserID          domain.UserID   `json:"userId"`
	RtpCapabilities json.RawMessage `json:"rtpCapabilities"`
}

type CreateRouterRequest struct {
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}

type CreateSendTransportRequest struct {
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}

type CreateSendTransportResponse struct {
	UserID           domain.UserID      `json:"userId"`
	TransportOptions core.TransportInfo `json:"transportOptions"`
}

type CreateRecvTransportRequest struct {
	RoomID    domain.RoomID `json:"roomId"`
	UserID    domain.UserID `json:"userId"`
	SessionID string        `json:"sessionId"`
}

type CreateRecvTransportResponse struct {
	UserID           domain.UserID      `json:"userId"`
	RoomID           domain.RoomID      `json:"roomId"`
	SessionID        string             `json:"sessionId"`
	TransportOptions core.TransportInfo `json:"transportOptions"`
}

type ConnectTransportRequest struct {
	TransportID    string        `json:"transportId"`
	UserID         domain.UserID `json:"userId"`
	UserType       string        `json:"userType"`
	DtlsParameters string        `json:"dtlsParameters"`
}

type ConnectTransportResponse struct {
	UserID   domain.UserID `json:"userId"`
	UserType string        `json:"userType"`
}

type CreateProducerRequest struct {
	RoomID        domain.RoomID `json:"roomId"`
	UserID        domain.UserID `json:"userId"`
	TransportID   string        `json:"transportId"`
	Kind          string        `json:"kind"`
	RtpParameters string        `json:"rtpParameters"`
	SessionID     string        `json:"sessionId"`
	AppData       string        `json:"appData"`
}

type CreateProducerResponse struct {
	UserID        domain.UserID    `json:"userId"`
	RoomID        domain.RoomID    `json:"roomId"`
	ID            string           `json:"id"`
	Kind          domain.MediaKind `json:"kind"`
	RtpParameters string           `json:"rtpParameters"`
	SessionID     string           `json:"sessionId"`
	AppData       string           `json:"appData"`
}

type CreateConsumerRequest struct {
	RoomID          domain.RoomID `json:"roomId"`
	UserID          domain.UserID `json:"userId"`
	TransportID     string        `json:"transportId"`
	ProducerID      string        `json:"producerId"`
	RtpCapabilities string        `json:"rtpCapabilities"`
	Kind            string        `json:"kind"`
	SessionID       string        `json:"sessionId"`
	ParticipantID   string        `json:"participantId"`
	UserName        string        `json:"userName"`
	AppData         string        `json:"appData"`
}

type CreateConsumerResponse struct {
	UserID        domain.UserID    `json:"userId"`
	RoomID        domain.RoomID    `json:"roomId"`
	ID            string           `json:"id"`
	ProducerID    string           `json:"producerId"`
	Kind          domain.MediaKind `json:"kind"`
	RtpParameters string           `json:"rtpParameters"`
	SessionID     string           `json:"sessionId"`
	ParticipantID string           `json:"participantId"`
	UserName      string           `json:"userName"`
	AppData       string           `json:"appData"`
}

type PauseRequest struct {
	ConsumerID string `json:"consumerId"`
}

type ResumeRequest struct {
	ConsumerID string `json:"consumerId"`
}

type UserDisconnectRequest struct {
	UserID domain.UserID `json:"userId"`
	RoomID domain.RoomID `json:"roomId"`
}

type SessionEndRequest struct {
	RoomID domain.RoomID `json:"roomId"`
}
