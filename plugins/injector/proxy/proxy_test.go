package proxy

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/wsinspect/pkg/plugin"
)

// fakeProxy accepts one request per connection and answers with status.
func fakeProxy(t *testing.T, status int) (addr string, got chan *http.Request) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	got = make(chan *http.Request, 4)
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
				req.Header.Set("X-Test-Body", string(body))
				got <- req
				resp := &http.Response{
					StatusCode: status,
					ProtoMajor: 1,
					ProtoMinor: 1,
					Header:     http.Header{},
				}
				_ = resp.Write(c)
			}(conn)
		}
	}()
	return ln.Addr().String(), got
}

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{name: "nil config", config: nil, wantErr: true},
		{name: "missing addr", config: map[string]any{}, wantErr: true},
		{name: "bad addr", config: map[string]any{"addr": "nohostport"}, wantErr: true},
		{name: "valid", config: map[string]any{"addr": "127.0.0.1:8888"}},
		{name: "full", config: map[string]any{
			"addr":          "127.0.0.1:8888",
			"dial_timeout":  "500ms",
			"read_response": false,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Init(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInjectDeliversRawRequest(t *testing.T) {
	addr, got := fakeProxy(t, http.StatusOK)

	inj := New()
	require.NoError(t, inj.Init(map[string]any{"addr": addr}))

	raw := "POST http://fakewebsocket/s1/Outbound.1 HTTP/1.1\r\n" +
		"User-Agent: wsinspect\r\n" +
		"Content-Type: application/json; charset=utf-8\r\n" +
		"Host: fakewebsocket\r\n" +
		"Content-Length: 2\r\n\r\n{}"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, inj.Inject(ctx, &plugin.SyntheticRequest{URLPath: "s1/Outbound.1", Raw: []byte(raw)}))

	select {
	case req := <-got:
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/s1/Outbound.1", req.URL.Path)
		assert.Equal(t, "fakewebsocket", req.Host)
		assert.Equal(t, "wsinspect", req.UserAgent())
		assert.Equal(t, "{}", req.Header.Get("X-Test-Body"))
	case <-time.After(2 * time.Second):
		t.Fatal("proxy did not receive request")
	}
}

func TestInjectUpstreamErrorStillCountsAsRecorded(t *testing.T) {
	for _, status := range []int{http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusNotFound} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			addr, got := fakeProxy(t, status)

			inj := New()
			require.NoError(t, inj.Init(map[string]any{"addr": addr}))

			raw := "POST http://fakewebsocket/x HTTP/1.1\r\nHost: fakewebsocket\r\nContent-Length: 0\r\n\r\n"
			err := inj.Inject(context.Background(), &plugin.SyntheticRequest{URLPath: "x", Raw: []byte(raw)})
			require.NoError(t, err)
			assert.Len(t, got, 1)
			assert.Equal(t, uint64(1), inj.(*Injector).injectedCount.Load())
			assert.Equal(t, uint64(0), inj.(*Injector).errorCount.Load())
		})
	}
}

func TestInjectReportsProxyAuthRejection(t *testing.T) {
	addr, _ := fakeProxy(t, http.StatusProxyAuthRequired)

	inj := New()
	require.NoError(t, inj.Init(map[string]any{"addr": addr}))

	raw := "POST http://fakewebsocket/x HTTP/1.1\r\nHost: fakewebsocket\r\nContent-Length: 0\r\n\r\n"
	err := inj.Inject(context.Background(), &plugin.SyntheticRequest{URLPath: "x", Raw: []byte(raw)})
	assert.Error(t, err)
	assert.Equal(t, uint64(1), inj.(*Injector).errorCount.Load())
}

func TestInjectDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	inj := New()
	require.NoError(t, inj.Init(map[string]any{"addr": addr, "dial_timeout": "200ms"}))
	assert.Error(t, inj.Inject(context.Background(), &plugin.SyntheticRequest{Raw: []byte("x")}))
}
