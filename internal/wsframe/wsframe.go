// Package wsframe converts wire-level WebSocket frames into the RawFrame
// representation the pipeline ingests.
package wsframe

import (
	"time"

	"github.com/gobwas/ws"

	"firestige.xyz/wsinspect/internal/codec"
	"firestige.xyz/wsinspect/internal/core"
)

// FrameType maps a wire opcode to a frame type. Reserved opcodes are rejected.
func FrameType(op ws.OpCode) (core.FrameType, bool) {
	switch op {
	case ws.OpText:
		return core.FrameText, true
	case ws.OpBinary:
		return core.FrameBinary, true
	case ws.OpContinuation:
		return core.FrameContinuation, true
	case ws.OpClose:
		return core.FrameClose, true
	case ws.OpPing:
		return core.FramePing, true
	case ws.OpPong:
		return core.FramePong, true
	default:
		return 0, false
	}
}

// HostPayload renders an unmasked payload the way a debugging proxy presents
// it: Text and control frames as text, Binary and Continuation frames as
// hyphen separated hex.
func HostPayload(t core.FrameType, payload []byte) string {
	switch t {
	case core.FrameBinary, core.FrameContinuation:
		return codec.EncodeHexPayload(payload)
	default:
		return string(payload)
	}
}

// ToRawFrame builds a RawFrame from f. Masked frames are unmasked on a copy,
// f itself is left untouched so it can be forwarded as is.
func ToRawFrame(f ws.Frame, dir core.Direction, seq uint64, session string, at time.Time) (core.RawFrame, bool) {
	t, ok := FrameType(f.Header.OpCode)
	if !ok {
		return core.RawFrame{}, false
	}
	if f.Header.Masked {
		f = ws.UnmaskFrame(f)
	}
	return core.RawFrame{
		Direction:  dir,
		Type:       t,
		SequenceID: seq,
		Session:    session,
		Payload:    HostPayload(t, f.Payload),
		Final:      f.Header.Fin,
		ReceivedAt: at,
	}, true
}
