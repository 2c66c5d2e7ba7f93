// Package replay feeds WebSocket frames recovered from a packet capture into
// the pipeline, as if a proxy had observed them live.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/gopacket/tcpassembly"

	"firestige.xyz/wsinspect/internal/pipeline"
)

var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// Stats summarizes one replay.
type Stats struct {
	Packets          int
	TCPPackets       int
	Streams          int
	WebSocketStreams int
	Frames           int
	BrokenStreams    int
}

// Option configures a replay.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// File replays the pcap or pcapng capture at path.
func File(ctx context.Context, path string, ingest pipeline.IngestFunc, opts ...Option) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()
	return Reader(ctx, f, ingest, opts...)
}

// Reader replays a capture read from r. The format is detected from the
// leading magic number.
func Reader(ctx context.Context, r io.Reader, ingest pipeline.IngestFunc, opts ...Option) (Stats, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return Stats{}, fmt.Errorf("read capture header: %w", err)
	}

	var (
		src      gopacket.PacketDataSource
		linkType layers.LinkType
	)
	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return Stats{}, fmt.Errorf("open pcapng: %w", err)
		}
		src, linkType = ng, ng.LinkType()
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return Stats{}, fmt.Errorf("open pcap: %w", err)
		}
		src, linkType = pr, pr.LinkType()
	}

	factory := newStreamFactory(ingest, o.logger)
	assembler := tcpassembly.NewAssembler(tcpassembly.NewStreamPool(factory))

	var stats Stats
	packets := gopacket.NewPacketSource(src, linkType)
	packets.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		pkt, err := packets.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// truncated trailing records are common in live captures
			o.logger.Debug("skipping undecodable packet", "error", err)
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			continue
		}
		stats.Packets++

		netLayer := pkt.NetworkLayer()
		tcp, ok := pkt.TransportLayer().(*layers.TCP)
		if netLayer == nil || !ok {
			continue
		}
		stats.TCPPackets++
		assembler.AssembleWithTimestamp(netLayer.NetworkFlow(), tcp, pkt.Metadata().Timestamp)
	}
	assembler.FlushAll()

	factory.fill(&stats)
	o.logger.Info("capture replayed",
		"packets", stats.Packets,
		"streams", stats.Streams,
		"websocket_streams", stats.WebSocketStreams,
		"frames", stats.Frames,
	)
	return stats, nil
}
