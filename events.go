package main

import "encoding/json"

// Inbound messages all share one envelope.
type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound message types available to any authenticated role.
const (
	msgChat        = "chat"
	msgLeave       = "leave"
	msgUploadImage = "uploadImage"
	msgFaceFrame   = "faceFrame"
)

// Inbound message types reserved for the lobby admin.
const (
	msgKick                = "kick"
	msgStartGame           = "startGame"
	msgCloseLobby          = "closeLobby"
	msgDisband             = "disband"
	msgMute                = "mute"
	msgUnmute              = "unmute"
	msgChangeSettings      = "changeSettings"
	msgFaceSettings        = "faceDetectionSettings"
	msgRequestFaceSettings = "requestFaceDetectionSettings"
	msgNewRoundVideo       = "newRoundVideo"
)

type chatPayload struct {
	Text string `json:"text"`
}

type targetPayload struct {
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

type imagePayload struct {
	ImageData string `json:"imageData"`
}

// Pointer fields distinguish "absent" from zero values; only present
// fields are candidates for a settings change.
type settingsPayload struct {
	MaxPlayers   *int  `json:"maxPlayers"`
	Rounds       *int  `json:"rounds"`
	TextDisabled *bool `json:"textDisabled"`
}

type faceSettingsPayload struct {
	Enabled            *bool   `json:"enabled"`
	RequiredMode       *string `json:"requiredMode"`
	DetectionFrequency *int    `json:"detectionFrequency"`
	BroadcastToAll     *bool   `json:"broadcastToAll"`
}

// privateMessage is addressed to a single connection, as opposed to the
// group event envelope built by snapshotEventLocked.
type privateMessage struct {
	Type        string `json:"type"`
	MessageType string `json:"messageType"`
	Message     any    `json:"message"`
}

func newPrivateMessage(messageType string, message any) privateMessage {
	return privateMessage{
		Type:        "private",
		MessageType: messageType,
		Message:     message,
	}
}
