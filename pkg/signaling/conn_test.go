package signaling

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tphan267/arqut-signal/pkg/logger"
)

type stateChange struct {
	state ConnectionState
	err   error
}

// startEchoServer writes every received message back. A text message
// "close-me" makes the server drop the connection.
func startEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.Contains(string(data), "close-me") {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func watchStates(c *Connection) <-chan stateChange {
	ch := make(chan stateChange, 16)
	c.OnStateChange(func(state ConnectionState, err error) {
		ch <- stateChange{state, err}
	})
	return ch
}

func waitState(t *testing.T, ch <-chan stateChange, want ConnectionState) stateChange {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case change := <-ch:
			if change.state == want {
				return change
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for state %s", want)
		}
	}
}

func TestNewConnectionRejectsBadEndpoints(t *testing.T) {
	for _, raw := range []string{"", "   ", "://relay", "ftp://relay.example.com", "ws://", "http://%zz"} {
		_, err := NewConnection(raw, DefaultSecurityConfig())
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("Expected ConfigurationError for %q, got %v", raw, err)
			continue
		}
		if cfgErr.Field != "endpoint URL" {
			t.Errorf("Expected field 'endpoint URL' for %q, got %q", raw, cfgErr.Field)
		}
	}
}

func TestNewConnectionRejectsAnchorsWithoutVerification(t *testing.T) {
	security := SecurityConfig{VerifyServerCertificate: false, CustomTrustAnchors: x509.NewCertPool()}
	_, err := NewConnection("wss://relay.example.com", security, WithLogger(testLogger()))
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigurationError, got %v", err)
	}
}

func TestInsecureModeWarnsOnce(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewConnection("wss://relay.example.com", SecurityConfig{VerifyServerCertificate: false},
		WithLogger(logger.New(&buf, "TEST", logger.WarnLevel)))
	if err != nil {
		t.Fatalf("Failed to create connection: %v", err)
	}
	if n := strings.Count(buf.String(), "verification is disabled"); n != 1 {
		t.Errorf("Expected one verification warning, got %d in %q", n, buf.String())
	}
}

func TestNewConnectionRewritesHTTPSchemes(t *testing.T) {
	tests := map[string]string{
		"http://relay.local:8080":   "ws://relay.local:8080",
		"https://relay.example.com": "wss://relay.example.com",
		"wss://relay.example.com/x": "wss://relay.example.com/x",
	}
	for raw, want := range tests {
		c, err := NewConnection(raw, DefaultSecurityConfig(), WithLogger(testLogger()))
		if err != nil {
			t.Fatalf("Failed to create connection for %s: %v", raw, err)
		}
		if c.Endpoint() != want {
			t.Errorf("Expected %s, got %s", want, c.Endpoint())
		}
		if c.State() != Disconnected {
			t.Errorf("Expected new connection to be disconnected, got %s", c.State())
		}
	}
}

func TestEmitBeforeConnectIsDeliveredInOrder(t *testing.T) {
	for _, codec := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			srv := startEchoServer(t)
			c, err := NewConnection(wsURL(srv), DefaultSecurityConfig(), WithCodec(codec), WithLogger(testLogger()))
			if err != nil {
				t.Fatalf("Failed to create connection: %v", err)
			}
			defer c.Disconnect()

			var mu sync.Mutex
			var calls []string
			done := make(chan struct{})
			c.On("hello", func(args []any) {
				mu.Lock()
				defer mu.Unlock()
				calls = append(calls, "first:"+args[0].(string))
			})
			c.On("hello", func(args []any) {
				mu.Lock()
				calls = append(calls, "second:"+args[0].(string))
				mu.Unlock()
				close(done)
			})

			c.Emit("hello", "world")
			if err := c.Connect(context.Background()); err != nil {
				t.Fatalf("Failed to connect: %v", err)
			}

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("Timed out waiting for echoed event")
			}

			mu.Lock()
			defer mu.Unlock()
			if len(calls) != 2 || calls[0] != "first:world" || calls[1] != "second:world" {
				t.Errorf("Expected handlers in registration order, got %v", calls)
			}
			if c.State() != Connected {
				t.Errorf("Expected connected, got %s", c.State())
			}
		})
	}
}

func TestHandlerPanicDoesNotStopDispatch(t *testing.T) {
	srv := startEchoServer(t)
	c, err := NewConnection(wsURL(srv), DefaultSecurityConfig(), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Failed to create connection: %v", err)
	}
	defer c.Disconnect()

	got := make(chan string, 2)
	c.On("ping", func([]any) { panic("boom") })
	c.On("ping", func(args []any) { got <- args[0].(string) })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	c.Emit("ping", "one")
	c.Emit("ping", "two")

	for _, want := range []string{"one", "two"} {
		select {
		case v := <-got:
			if v != want {
				t.Errorf("Expected %s, got %s", want, v)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out waiting for %s", want)
		}
	}
}

func TestConnectTwiceFails(t *testing.T) {
	srv := startEchoServer(t)
	c, err := NewConnection(wsURL(srv), DefaultSecurityConfig(), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Failed to create connection: %v", err)
	}
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("Expected ErrAlreadyConnected, got %v", err)
	}
}

func TestServerDropReportsCause(t *testing.T) {
	srv := startEchoServer(t)
	c, err := NewConnection(wsURL(srv), DefaultSecurityConfig(), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Failed to create connection: %v", err)
	}
	defer c.Disconnect()
	states := watchStates(c)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	waitState(t, states, Connected)

	c.Emit("close-me")
	change := waitState(t, states, Disconnected)
	if change.err == nil {
		t.Error("Expected a cause for the dropped connection")
	}
}

func TestCancelledContextDropsConnection(t *testing.T) {
	srv := startEchoServer(t)
	c, err := NewConnection(wsURL(srv), DefaultSecurityConfig(), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Failed to create connection: %v", err)
	}
	defer c.Disconnect()
	states := watchStates(c)

	echoed := make(chan struct{}, 1)
	c.On("ping", func([]any) { echoed <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	waitState(t, states, Connected)

	cancel()
	change := waitState(t, states, Disconnected)
	if !errors.Is(change.err, context.Canceled) {
		t.Errorf("Expected context.Canceled cause, got %v", change.err)
	}
	if c.State() != Disconnected {
		t.Errorf("Expected disconnected, got %s", c.State())
	}

	c.Emit("ping")
	select {
	case <-echoed:
		t.Error("Expected no traffic after the context ended")
	case <-time.After(200 * time.Millisecond):
	}
}

// startSilentServer accepts websocket connections and never reads from them,
// so pings go unanswered.
func startSilentServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv
}

func TestUnresponsiveRelayIsDetected(t *testing.T) {
	srv := startSilentServer(t)
	c, err := NewConnection(wsURL(srv), DefaultSecurityConfig(),
		WithLogger(testLogger()),
		WithKeepalive(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("Failed to create connection: %v", err)
	}
	defer c.Disconnect()
	states := watchStates(c)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	waitState(t, states, Connected)

	change := waitState(t, states, Disconnected)
	if change.err == nil {
		t.Error("Expected a cause for the unresponsive relay")
	}
}

func TestDialFailureReportsCause(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	c, err := NewConnection(url, DefaultSecurityConfig(), WithLogger(testLogger()), WithHandshakeTimeout(time.Second))
	if err != nil {
		t.Fatalf("Failed to create connection: %v", err)
	}
	states := watchStates(c)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect must not fail synchronously: %v", err)
	}
	waitState(t, states, Connecting)
	change := waitState(t, states, Disconnected)
	if change.err == nil {
		t.Error("Expected dial error")
	}
}

func TestDisconnectReportsNoCause(t *testing.T) {
	srv := startEchoServer(t)
	c, err := NewConnection(wsURL(srv), DefaultSecurityConfig(), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Failed to create connection: %v", err)
	}
	states := watchStates(c)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	waitState(t, states, Connected)

	c.Disconnect()
	c.Disconnect()
	change := waitState(t, states, Disconnected)
	if change.err != nil {
		t.Errorf("Expected nil cause after Disconnect, got %v", change.err)
	}

	c.Emit("hello")
	if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
