// Package ws streams engine events to dashboard clients over WebSocket and
// accepts control and telemetry messages from them.
package ws

import "encoding/json"

// Message is the tagged wire envelope shared by both directions.
type Message struct {
	Type     string          `json:"type"`
	DeviceID string          `json:"deviceId,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Outbound message types.
const (
	TypeTelemetry  = "telemetry"
	TypeStatus     = "status"
	TypeAlert      = "alert"
	TypeAck        = "ack"
	TypeDeviceList = "device_list"
)

// Inbound message types.
const (
	TypeGetDevices = "get_devices"
	TypeControl    = "control"
)

// outMessage is the outbound counterpart of Message with an untyped payload.
type outMessage struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// controlPayload is the data field of an inbound control message.
type controlPayload struct {
	Command string `json:"command"`
}
