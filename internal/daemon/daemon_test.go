package daemon

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type injected struct {
	path string
	body string
}

// fakeHostProxy records synthetic requests submitted by the proxy injector.
func fakeHostProxy(t *testing.T) (string, <-chan injected) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	got := make(chan injected, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				req, err := http.ReadRequest(bufio.NewReader(c))
				if err != nil {
					return
				}
				body, _ := io.ReadAll(req.Body)
				got <- injected{path: req.URL.Path, body: string(body)}
				_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
			}(conn)
		}
	}()
	return ln.Addr().String(), got
}

func echoUpstream(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			for {
				msg, op, err := wsutil.ReadClientData(conn)
				if err != nil {
					return
				}
				if err := wsutil.WriteServerMessage(conn, op, msg); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)
	return "ws://" + srv.Listener.Addr().String()
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

func TestDaemon_StartStopIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	proxyAddr, got := fakeHostProxy(t)
	upstream := echoUpstream(t)

	configPath := filepath.Join(tmpDir, "config.yml")
	pidFile := filepath.Join(tmpDir, "wsinspect.pid")
	writeConfig(t, configPath, `
wsinspect:
  log:
    level: debug
    format: text
    outputs:
      file:
        enabled: true
        path: `+filepath.Join(tmpDir, "wsinspect.log")+`
  metrics:
    enabled: true
    listen: 127.0.0.1:0
  pipeline:
    drain_interval: 50ms
  emitter:
    injector:
      type: proxy
      options:
        addr: `+proxyAddr+`
  relay:
    enabled: true
    listen: 127.0.0.1:0
    upstream: `+upstream+`
`)

	d, err := New(configPath, pidFile)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	if err := d.Start(); err != nil {
		d.Stop()
		t.Fatalf("failed to start daemon: %v", err)
	}

	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		t.Errorf("PID file was not created: %s", pidFile)
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- d.Run()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(ctx, "ws://"+d.RelayAddr()+"/feed")
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	if err := wsutil.WriteClientText(conn, []byte(`{"op":"subscribe"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := wsutil.ReadServerText(conn); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	conn.Close()

	seen := map[string]string{}
	deadline := time.After(5 * time.Second)
	for len(seen) < 2 {
		select {
		case req := <-got:
			seen[req.path[strings.LastIndexByte(req.path, '/')+1:]] = req.body
		case <-deadline:
			t.Fatalf("host proxy received %d of 2 synthetic requests", len(seen))
		}
	}
	for _, id := range []string{"Outbound.1", "Inbound.1"} {
		body, ok := seen[id]
		if !ok {
			t.Fatalf("missing synthetic request for %s", id)
		}
		if !strings.Contains(body, `"payload": {"op":"subscribe"}`) {
			t.Errorf("%s body = %s", id, body)
		}
		if !strings.Contains(body, `"requestPartCount": "1"`) {
			t.Errorf("%s body missing part count: %s", id, body)
		}
	}

	d.TriggerShutdown()
	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("daemon.Run() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}

	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Errorf("PID file was not removed after shutdown: %s", pidFile)
	}
}

func TestDaemon_ReloadLogLevelAndInterval(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yml")
	writeConfig(t, configPath, `
wsinspect:
  log:
    level: info
    format: text
  metrics:
    enabled: false
  pipeline:
    drain_interval: 1s
`)

	d, err := New(configPath, filepath.Join(tmpDir, "wsinspect.pid"))
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	writeConfig(t, configPath, `
wsinspect:
  log:
    level: debug
    format: text
  metrics:
    enabled: false
  pipeline:
    drain_interval: 20ms
`)
	if err := d.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if d.config.Log.Level != "debug" {
		t.Fatalf("expected level debug after reload, got %s", d.config.Log.Level)
	}

	before := d.Pipeline().Stats().Cycles
	time.Sleep(200 * time.Millisecond)
	if after := d.Pipeline().Stats().Cycles; after-before < 3 {
		t.Errorf("expected faster drain cycles after reload, got %d in 200ms", after-before)
	}
}

func TestDaemon_ReloadRejectsInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yml")
	writeConfig(t, configPath, `
wsinspect:
  log:
    level: info
  metrics:
    enabled: false
`)

	d, err := New(configPath, "")
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	d.pidFile = ""
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	writeConfig(t, configPath, `
wsinspect:
  log:
    level: loud
`)
	if err := d.Reload(); err == nil {
		t.Fatal("expected reload error for invalid config")
	}
	if d.config.Log.Level != "info" {
		t.Errorf("config should be unchanged, got level %s", d.config.Log.Level)
	}
}

func TestDaemon_StartFailsOnUnknownInjector(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yml")
	writeConfig(t, configPath, `
wsinspect:
  metrics:
    enabled: false
  emitter:
    injector:
      type: carrier-pigeon
`)

	d, err := New(configPath, filepath.Join(tmpDir, "wsinspect.pid"))
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	err = d.Start()
	d.Stop()
	if err == nil {
		t.Fatal("expected start error")
	}
}

func TestSignalRunning(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := SignalRunning(filepath.Join(tmpDir, "missing.pid"), syscall.SIGHUP); err == nil {
		t.Error("expected error for missing PID file")
	}

	bad := filepath.Join(tmpDir, "bad.pid")
	writeConfig(t, bad, "not-a-pid\n")
	if _, err := ReadPIDFile(bad); err == nil {
		t.Error("expected error for malformed PID file")
	}

	self := filepath.Join(tmpDir, "self.pid")
	writeConfig(t, self, "12345\n")
	pid, err := ReadPIDFile(self)
	if err != nil || pid != 12345 {
		t.Errorf("ReadPIDFile = %d, %v", pid, err)
	}
}
