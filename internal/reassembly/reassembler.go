// Package reassembly folds WebSocket frames into logical messages and renders
// each completed message as the JSON body of a synthetic request.
package reassembly

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"firestige.xyz/wsinspect/internal/codec"
	"firestige.xyz/wsinspect/internal/core"
	"firestige.xyz/wsinspect/internal/metrics"
)

// DoneTimeLayout formats the doneTime field.
const DoneTimeLayout = "15:04:05.000"

// Message is a completed logical message ready for emission.
type Message struct {
	URLPath    string
	Body       string
	SessionKey string
	MessageID  string
	Type       core.FrameType
	Parts      int
}

// Sink receives completed messages. Emit must not block for long; it runs on
// the drain goroutine.
type Sink interface {
	Emit(msg Message)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(msg Message)

// Emit calls f(msg).
func (f SinkFunc) Emit(msg Message) { f(msg) }

// accumulatorKey isolates one direction of one session. Control frames may
// arrive between the fragments of a data message, so they get their own slot.
type accumulatorKey struct {
	session   string
	direction core.Direction
	control   bool
}

// accumulator holds one in-flight logical message.
type accumulator struct {
	sessionKey string
	messageID  string
	frameType  core.FrameType
	body       strings.Builder
	url        strings.Builder
	isJSON     bool
	parts      int
	lastSeen   time.Time
}

// Reassembler owns the per-session accumulators. It is not safe for concurrent
// use; the drain scheduler serializes all calls.
type Reassembler struct {
	sink    Sink
	pending map[accumulatorKey]*accumulator
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Reassembler.
type Option func(*Reassembler)

// WithLogger sets the logger used for abandoned and orphaned messages.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reassembler) { r.logger = l }
}

// WithClock overrides the clock used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(r *Reassembler) { r.now = now }
}

// New creates a reassembler that hands completed messages to sink.
func New(sink Sink, opts ...Option) *Reassembler {
	r := &Reassembler{
		sink:    sink,
		pending: make(map[accumulatorKey]*accumulator),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fold processes one frame. A returned error describes a problem with this
// frame only; the frame has still been folded as far as possible and the
// reassembler remains usable.
func (r *Reassembler) Fold(f core.RawFrame) error {
	key := accumulatorKey{
		session:   SessionKey(f.Session),
		direction: f.Direction,
		control:   f.Type.IsControl(),
	}
	var errs []error

	acc := r.pending[key]
	if f.Type != core.FrameContinuation {
		if acc != nil {
			r.logger.Warn("abandoning incomplete message",
				"session", key.session,
				"message_id", acc.messageID,
				"parts", acc.parts,
			)
			metrics.AbandonedMessagesTotal.Inc()
		}
		acc = &accumulator{sessionKey: key.session}
		r.pending[key] = acc
		if err := r.open(acc, &f); err != nil {
			errs = append(errs, err)
		}
	} else {
		if acc == nil {
			acc = &accumulator{sessionKey: key.session, frameType: f.Type, messageID: f.MessageID()}
			r.pending[key] = acc
			errs = append(errs, fmt.Errorf("%w: session %s seq %d",
				core.ErrOrphanContinuation, key.session, f.SequenceID))
		}
		text, err := codec.DecodeHexPayload(f.Payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("continuation %s: %w", f.MessageID(), err))
		}
		r.appendPayload(acc, text)
	}

	acc.parts++
	acc.lastSeen = r.now()

	if f.Final {
		r.flush(key, acc)
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return fmt.Errorf("%w; %w", errs[0], errs[1])
	}
}

// open writes the fixed fields and the start of the payload for an initiating frame.
func (r *Reassembler) open(acc *accumulator, f *core.RawFrame) error {
	acc.messageID = f.MessageID()
	acc.frameType = f.Type

	acc.url.WriteString(acc.sessionKey)
	acc.url.WriteByte('/')
	acc.url.WriteString(acc.messageID)

	b := &acc.body
	b.WriteString(`{"doneTime": "`)
	b.WriteString(f.ReceivedAt.Format(DoneTimeLayout))
	b.WriteString(`", "messageType": "`)
	b.WriteString(f.Type.String())
	b.WriteString(`", "messageID": "`)
	b.WriteString(acc.messageID)
	b.WriteString(`", "wsSession": "`)
	b.WriteString(codec.EscapeJSONString(acc.sessionKey))
	b.WriteString(`", "payload": `)

	text := f.Payload
	var err error
	if f.Type == core.FrameBinary {
		text, err = codec.DecodeHexPayload(f.Payload)
		if err != nil {
			err = fmt.Errorf("binary %s: %w", acc.messageID, err)
		}
	}

	if strings.HasPrefix(text, "{") {
		acc.isJSON = true
		b.WriteString(text)
	} else {
		// closing quote is written on flush
		b.WriteByte('"')
		b.WriteString(codec.EscapeJSONString(text))
	}
	return err
}

func (r *Reassembler) appendPayload(acc *accumulator, text string) {
	if acc.isJSON {
		acc.body.WriteString(text)
		return
	}
	acc.body.WriteString(codec.EscapeJSONString(text))
}

// flush closes the body, hands the message to the sink and drops the accumulator.
func (r *Reassembler) flush(key accumulatorKey, acc *accumulator) {
	if !acc.isJSON {
		acc.body.WriteByte('"')
	}
	acc.body.WriteString(`, "requestPartCount": "`)
	acc.body.WriteString(strconv.Itoa(acc.parts))
	acc.body.WriteString(`"}`)

	msg := Message{
		URLPath:    acc.url.String(),
		Body:       acc.body.String(),
		SessionKey: acc.sessionKey,
		MessageID:  acc.messageID,
		Type:       acc.frameType,
		Parts:      acc.parts,
	}
	delete(r.pending, key)

	if r.sink != nil {
		r.sink.Emit(msg)
	}
}

// Pending returns the number of partially accumulated messages.
func (r *Reassembler) Pending() int {
	return len(r.pending)
}

// Expire discards partial messages that have not seen a frame for maxIdle.
// It returns how many were discarded.
func (r *Reassembler) Expire(now time.Time, maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	n := 0
	for key, acc := range r.pending {
		if now.Sub(acc.lastSeen) > maxIdle {
			r.logger.Warn("expiring incomplete message",
				"session", key.session,
				"message_id", acc.messageID,
				"parts", acc.parts,
				"idle", now.Sub(acc.lastSeen),
			)
			delete(r.pending, key)
			n++
		}
	}
	return n
}

// Reset discards every partial message and returns how many were dropped.
func (r *Reassembler) Reset() int {
	n := len(r.pending)
	clear(r.pending)
	return n
}
