package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestServerExposesMetricsAndHealth(t *testing.T) {
	s := NewServer("127.0.0.1:0", "")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(context.Background())

	FramesIngestedTotal.WithLabelValues("Outbound").Inc()
	DrainCyclesTotal.WithLabelValues(CycleEmpty).Inc()

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	for _, name := range []string{"wsinspect_frames_ingested_total", "wsinspect_drain_cycles_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}

	resp, err = http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /healthz, got %d", resp.StatusCode)
	}
}

func TestServerStartFailsOnBusyAddress(t *testing.T) {
	first := NewServer("127.0.0.1:0", "/metrics")
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer first.Stop(context.Background())

	second := NewServer(first.Addr(), "/metrics")
	if err := second.Start(context.Background()); err == nil {
		second.Stop(context.Background())
		t.Fatal("expected bind error for busy address")
	}
}

func TestStopBeforeStart(t *testing.T) {
	s := NewServer("127.0.0.1:0", "/metrics")
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start returned %v", err)
	}
}
