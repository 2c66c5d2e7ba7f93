package replay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/gopacket"
	"github.com/google/gopacket/tcpassembly"

	"firestige.xyz/wsinspect/internal/core"
	"firestige.xyz/wsinspect/internal/pipeline"
	"firestige.xyz/wsinspect/internal/wsframe"
)

const (
	maxHandshakeSize = 64 << 10
	maxFrameSize     = 64 << 20
)

var headerEnd = []byte("\r\n\r\n")

type streamState int

const (
	stateHandshake streamState = iota
	stateFrames
	stateIgnored
	stateBroken
)

// connection is shared by both directions of one TCP connection.
type connection struct {
	display string
	outSeq  uint64
	inSeq   uint64
}

type streamFactory struct {
	ingest pipeline.IngestFunc
	logger *slog.Logger

	conns   map[string]*connection
	streams []*wsStream
}

func newStreamFactory(ingest pipeline.IngestFunc, logger *slog.Logger) *streamFactory {
	return &streamFactory{
		ingest: ingest,
		logger: logger,
		conns:  make(map[string]*connection),
	}
}

// New implements tcpassembly.StreamFactory. The assembler runs on a single
// goroutine, so the factory needs no locking.
func (f *streamFactory) New(netFlow, tcpFlow gopacket.Flow) tcpassembly.Stream {
	src := endpoint(netFlow.Src(), tcpFlow.Src())
	dst := endpoint(netFlow.Dst(), tcpFlow.Dst())
	a, b := src, dst
	if b < a {
		a, b = b, a
	}
	key := a + "-" + b

	c, ok := f.conns[key]
	if !ok {
		c = &connection{display: fmt.Sprintf("%d.%s", len(f.conns)+1, key)}
		f.conns[key] = c
	}

	s := &wsStream{
		factory: f,
		conn:    c,
		flow:    src + "->" + dst,
	}
	f.streams = append(f.streams, s)
	return s
}

func (f *streamFactory) fill(stats *Stats) {
	stats.Streams = len(f.streams)
	for _, s := range f.streams {
		switch s.state {
		case stateFrames:
			stats.WebSocketStreams++
		case stateBroken:
			stats.WebSocketStreams++
			stats.BrokenStreams++
		}
		stats.Frames += s.frames
	}
}

func endpoint(n, t gopacket.Endpoint) string {
	host := n.String()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return host + ":" + t.String()
}

// wsStream is one direction of a TCP connection. It waits for an HTTP
// upgrade handshake, then parses WebSocket frames from the byte stream.
type wsStream struct {
	factory *streamFactory
	conn    *connection
	flow    string

	state  streamState
	dir    core.Direction
	buf    []byte
	seen   int
	frames int
}

// Reassembled implements tcpassembly.Stream.
func (s *wsStream) Reassembled(rs []tcpassembly.Reassembly) {
	for _, r := range rs {
		if s.state == stateIgnored || s.state == stateBroken {
			return
		}
		if r.Skip != 0 && s.seen > 0 {
			s.fail("gap in reassembled stream", fmt.Errorf("skipped %d bytes", r.Skip))
			return
		}
		if len(r.Bytes) == 0 {
			continue
		}
		s.seen += len(r.Bytes)
		s.buf = append(s.buf, r.Bytes...)

		if s.state == stateHandshake {
			s.handshake()
		}
		if s.state == stateFrames {
			s.parseFrames(r.Seen)
		}
	}
}

// ReassemblyComplete implements tcpassembly.Stream.
func (s *wsStream) ReassemblyComplete() {
	if s.state == stateFrames && len(s.buf) > 0 {
		s.factory.logger.Debug("stream ended inside a frame",
			"flow", s.flow, "trailing_bytes", len(s.buf))
	}
	s.buf = nil
}

func (s *wsStream) handshake() {
	end := bytes.Index(s.buf, headerEnd)
	if end < 0 {
		if len(s.buf) > maxHandshakeSize {
			s.ignore()
		}
		return
	}
	head := s.buf[:end+len(headerEnd)]

	switch {
	case bytes.HasPrefix(head, []byte("GET ")):
		req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(head)))
		if err != nil || !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
			s.ignore()
			return
		}
		s.dir = core.Outbound
	case bytes.HasPrefix(head, []byte("HTTP/1.")):
		resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(head)), nil)
		if err != nil || resp.StatusCode != http.StatusSwitchingProtocols {
			s.ignore()
			return
		}
		s.dir = core.Inbound
	default:
		s.ignore()
		return
	}

	s.buf = s.buf[len(head):]
	s.state = stateFrames
	s.factory.logger.Debug("websocket stream detected",
		"session", s.conn.display, "flow", s.flow, "direction", s.dir)
}

func (s *wsStream) parseFrames(seen time.Time) {
	for len(s.buf) > 0 {
		r := bytes.NewReader(s.buf)
		h, err := ws.ReadHeader(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.fail("invalid frame header", err)
			}
			return
		}
		if h.Length > maxFrameSize {
			s.fail("frame too large", fmt.Errorf("length %d", h.Length))
			return
		}
		hdrLen := len(s.buf) - r.Len()
		total := hdrLen + int(h.Length)
		if len(s.buf) < total {
			return
		}

		payload := make([]byte, h.Length)
		copy(payload, s.buf[hdrLen:total])
		s.buf = s.buf[total:]

		rf, ok := wsframe.ToRawFrame(ws.Frame{Header: h, Payload: payload}, s.dir, s.nextSeq(), s.conn.display, seen)
		if !ok {
			s.fail("reserved opcode", fmt.Errorf("opcode %#x", h.OpCode))
			return
		}
		s.frames++
		s.factory.ingest(rf)
	}
}

func (s *wsStream) nextSeq() uint64 {
	if s.dir == core.Inbound {
		s.conn.inSeq++
		return s.conn.inSeq
	}
	s.conn.outSeq++
	return s.conn.outSeq
}

func (s *wsStream) ignore() {
	s.state = stateIgnored
	s.buf = nil
}

func (s *wsStream) fail(msg string, err error) {
	s.factory.logger.Warn("abandoning websocket stream: "+msg,
		"session", s.conn.display, "flow", s.flow, "frames", s.frames, "error", err)
	s.state = stateBroken
	s.buf = nil
}
