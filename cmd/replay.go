package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/wsinspect/internal/config"
	"firestige.xyz/wsinspect/internal/daemon"
	logpkg "firestige.xyz/wsinspect/internal/log"
	"firestige.xyz/wsinspect/internal/pipeline"
	"firestige.xyz/wsinspect/internal/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay WebSocket traffic from a pcap/pcapng capture",
	Long: `Read a packet capture, recover the WebSocket frames of every upgraded
TCP connection and run them through the reassembly pipeline. Each completed
message is submitted to the configured injector.

Examples:
  wsinspect replay -f session.pcapng
  wsinspect replay -f session.pcap --injector console`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runReplay(ctx, replayFile, replayInjector, cmd.OutOrStdout())
	},
}

var (
	replayFile     string
	replayInjector string
)

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "capture file (required)")
	replayCmd.Flags().StringVar(&replayInjector, "injector", "", "override emitter.injector.type")
	_ = replayCmd.MarkFlagRequired("file")
}

func runReplay(ctx context.Context, path, injector string, out io.Writer) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if injector != "" && injector != cfg.Emitter.Injector.Type {
		cfg.Emitter.Injector = config.InjectorConfig{Type: injector}
	}
	if err := logpkg.Init(cfg.Log); err != nil {
		return err
	}

	output, err := daemon.StartOutput(ctx, cfg.Emitter)
	if err != nil {
		return err
	}
	defer output.Close(context.Background())

	p := pipeline.NewBuilder().
		WithInterval(cfg.Pipeline.DrainIntervalDuration()).
		WithPartialTimeout(cfg.Pipeline.PartialTimeoutDuration()).
		WithFinalDrain(true).
		WithSink(output.Emitter).
		WithLogger(slog.Default().With("component", "pipeline")).
		Build()
	p.Start(ctx)

	stats, replayErr := replay.File(ctx, path, p.Ingest(), replay.WithLogger(slog.Default()))
	p.Stop()

	fmt.Fprintf(out, "packets=%d streams=%d websocket_streams=%d frames=%d broken=%d\n",
		stats.Packets, stats.Streams, stats.WebSocketStreams, stats.Frames, stats.BrokenStreams)
	return replayErr
}
