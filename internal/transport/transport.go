// Package transport abstracts the persistent realtime channel. The hub only
// sees Frames and a Conn; the websocket details stay behind the Dialer.
package transport

import "encoding/json"

// Frame is the tagged union every realtime event travels in, both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals payload into a Frame for the given event. A nil payload
// produces a data-less frame (heartbeat).
func NewFrame(event string, payload any) (Frame, error) {
	f := Frame{Event: event}
	if payload == nil {
		return f, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	f.Data = data
	return f, nil
}

// Conn is a single established connection. One Conn corresponds to exactly
// one successful dial; reconnection produces a fresh Conn.
type Conn interface {
	// Send queues a frame for delivery. It fails once the connection is down.
	Send(f Frame) error
	// Frames delivers incoming frames. The channel is closed when the
	// connection dies.
	Frames() <-chan Frame
	// Done is closed when the connection is no longer usable, whatever the
	// cause.
	Done() <-chan struct{}
	// Close tears the connection down.
	Close() error
}
