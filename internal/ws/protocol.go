package ws

import (
	"github.com/sound-priority/daemon/internal/config"
	"github.com/sound-priority/daemon/internal/session"
)

type MessageType string

const (
	MsgHello    MessageType = "hello"
	MsgSnapshot MessageType = "snapshot"
	MsgStatus   MessageType = "status"
	MsgDaemon   MessageType = "daemon"
	MsgConfig   MessageType = "config"
	MsgError    MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type HelloPayload struct {
	ClientID string `json:"clientId"`
}

type SnapshotPayload struct {
	Snapshot session.Snapshot `json:"snapshot"`
}

// StatusPayload is sent immediately when the ducking status flips.
type StatusPayload struct {
	Status  session.Status `json:"status"`
	Peak    float32        `json:"peak"`
	Desired float32        `json:"desired"`
	Tick    uint64         `json:"tick"`
}

type DaemonPayload struct {
	Suspended bool `json:"suspended"`
}

type ConfigPayload struct {
	Ducking config.Ducking `json:"ducking"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
