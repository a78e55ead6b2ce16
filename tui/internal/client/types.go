// Package client provides WebSocket and HTTP clients for the sound-priority
// status server. Types mirror the daemon wire protocol without importing
// daemon packages.
package client

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgHello    MessageType = "hello"
	MsgSnapshot MessageType = "snapshot"
	MsgStatus   MessageType = "status"
	MsgDaemon   MessageType = "daemon"
	MsgConfig   MessageType = "config"
	MsgError    MessageType = "error"
)

// WSMessage is the envelope for all WebSocket messages.
type WSMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Status is the ducking state.
type Status string

const (
	StatusRestore Status = "restore"
	StatusReduce  Status = "reduce"
)

// Role is how the daemon classified a session on its last tick.
type Role string

const (
	RoleMeasured Role = "measured"
	RoleTarget   Role = "target"
	RoleExcluded Role = "excluded"
)

// Health is the daemon's view of its connection to the sound server.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthFailed   Health = "failed"
)

// View is one audio session.
type View struct {
	PID       uint32  `json:"pid"`
	Name      string  `json:"name"`
	Path      string  `json:"path,omitempty"`
	Volume    float32 `json:"volume"`
	Muted     bool    `json:"muted"`
	Peak      float32 `json:"peak"`
	Role      Role    `json:"role"`
	ReadError bool    `json:"readError,omitempty"`
}

// Snapshot is the daemon state after one tick.
type Snapshot struct {
	Tick      uint64    `json:"tick"`
	Status    Status    `json:"status"`
	Peak      float32   `json:"peak"`
	Desired   float32   `json:"desired"`
	Fading    bool      `json:"fading"`
	Suspended bool      `json:"suspended"`
	Device    string    `json:"device,omitempty"`
	Health    Health    `json:"health"`
	Sessions  []View    `json:"sessions"`
	At        time.Time `json:"at"`
}

// Ducking is the editable part of the daemon configuration.
type Ducking struct {
	Targets        []string `json:"targets"`
	Exclude        []string `json:"exclude"`
	Sensitivity    float32  `json:"sensitivity"`
	RestoreVolume  float32  `json:"restoreVolume"`
	ReduceVolume   float32  `json:"reduceVolume"`
	TransformSpeed float32  `json:"transformSpeed"`
}

type HelloPayload struct {
	ClientID string `json:"clientId"`
}

type SnapshotPayload struct {
	Snapshot Snapshot `json:"snapshot"`
}

type StatusPayload struct {
	Status  Status  `json:"status"`
	Peak    float32 `json:"peak"`
	Desired float32 `json:"desired"`
	Tick    uint64  `json:"tick"`
}

type DaemonPayload struct {
	Suspended bool `json:"suspended"`
}

type ConfigPayload struct {
	Ducking Ducking `json:"ducking"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
