// ABOUTME: Remote control message types
// ABOUTME: JSON envelopes and payloads exchanged over the control WebSocket
package remote

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cuebox/internal/scheduler"
)

// Message types sent by controllers
const (
	TypePlay          = "play"
	TypeNext          = "next"
	TypeClear         = "clear"
	TypeDeviceSelect  = "device/select"
	TypePeriodicStart = "periodic/start"
	TypePeriodicStop  = "periodic/stop"
)

// Message types sent by the server
const (
	TypeHello = "hello"
	TypeEvent = "event"
	TypeAck   = "ack"
	TypeError = "error"
)

// Message is the envelope for every frame. Payload stays raw until the
// type is known.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outbound is the envelope the server writes
type outbound struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// PlayCommand requests a clip by name
type PlayCommand struct {
	Clip    string `json:"clip"`
	Backend string `json:"backend,omitempty"`
	Device  string `json:"device,omitempty"`
}

// NextCommand requests the next clip in catalog order
type NextCommand struct {
	Backend string `json:"backend,omitempty"`
	Device  string `json:"device,omitempty"`
}

// DeviceSelectCommand picks a mixer device by index
type DeviceSelectCommand struct {
	Index int `json:"index"`
}

// PeriodicStartCommand arms the periodic trigger
type PeriodicStartCommand struct {
	IntervalMs int `json:"interval_ms"`
}

// DeviceInfo describes one mixer device
type DeviceInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Hello is sent once per connection
type Hello struct {
	ClientID string       `json:"client_id"`
	Name     string       `json:"name"`
	Version  string       `json:"version"`
	Clips    []string     `json:"clips"`
	Devices  []DeviceInfo `json:"devices"`
	Periodic bool         `json:"periodic"`
}

// Ack confirms an accepted command
type Ack struct {
	Command   string `json:"command"`
	RequestID string `json:"request_id,omitempty"`
	Device    string `json:"device,omitempty"`
}

// ErrorPayload reports a rejected command
type ErrorPayload struct {
	Command string `json:"command,omitempty"`
	Message string `json:"message"`
}

// EventPayload mirrors scheduler.Event on the wire
type EventPayload struct {
	Kind       string    `json:"kind"`
	Clip       string    `json:"clip,omitempty"`
	Backend    string    `json:"backend,omitempty"`
	Device     string    `json:"device,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	IntervalMs int64     `json:"interval_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// NewEventPayload converts a core event for the wire
func NewEventPayload(ev scheduler.Event) EventPayload {
	p := EventPayload{
		Kind:       string(ev.Kind),
		Clip:       ev.Clip,
		Backend:    ev.Backend,
		Device:     ev.Device,
		IntervalMs: ev.Interval.Milliseconds(),
		At:         ev.At,
	}
	if ev.RequestID != uuid.Nil {
		p.RequestID = ev.RequestID.String()
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	return p
}
