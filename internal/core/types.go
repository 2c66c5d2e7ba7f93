// Package core defines core types with zero external dependencies.
package core

// Direction tells which peer sent a frame.
type Direction uint8

const (
	// Outbound frames travel client to server.
	Outbound Direction = iota
	// Inbound frames travel server to client.
	Inbound
)

// String returns the name used in message ids.
func (d Direction) String() string {
	switch d {
	case Outbound:
		return "Outbound"
	case Inbound:
		return "Inbound"
	default:
		return "Unknown"
	}
}

// FrameType is the WebSocket frame kind as reported by the host.
type FrameType uint8

const (
	FrameText FrameType = iota
	FrameBinary
	FrameContinuation
	FrameClose
	FramePing
	FramePong
)

var frameTypeNames = [...]string{
	FrameText:         "Text",
	FrameBinary:       "Binary",
	FrameContinuation: "Continuation",
	FrameClose:        "Close",
	FramePing:         "Ping",
	FramePong:         "Pong",
}

// String returns the frame type name written into messageType.
func (t FrameType) String() string {
	if int(t) < len(frameTypeNames) {
		return frameTypeNames[t]
	}
	return "Unknown"
}

// IsControl reports whether t is Close, Ping or Pong.
func (t FrameType) IsControl() bool {
	return t == FrameClose || t == FramePing || t == FramePong
}
