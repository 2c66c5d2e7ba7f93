// Package core defines core data structures with zero external dependencies.
package core

import (
	"strconv"
	"time"
)

// RawFrame is one WebSocket frame as delivered by a host adapter.
// It is produced once per arrival and consumed exactly once by the reassembler.
type RawFrame struct {
	Direction  Direction
	Type       FrameType
	SequenceID uint64 // Host-assigned, unique per stream direction
	Session    string // Host display form of the connection, "<id>.<description>"
	Payload    string // Text as-is; binary and continuation as "7B-22-..." hex pairs
	Final      bool   // Completes the current logical message
	ReceivedAt time.Time
}

// MessageID returns "{direction}.{sequenceId}".
func (f *RawFrame) MessageID() string {
	return f.Direction.String() + "." + strconv.FormatUint(f.SequenceID, 10)
}
