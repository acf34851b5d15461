package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type wsServer struct {
	*httptest.Server
	conns chan *websocket.Conn
	seen  chan *http.Request
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	s := &wsServer{
		conns: make(chan *websocket.Conn, 4),
		seen:  make(chan *http.Request, 4),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.seen <- r
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func startListener(t *testing.T, l *Listener) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("listener did not stop")
		}
	})
}

func waitStatus(t *testing.T, l *Listener, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s, at %s", want, l.Status())
}

func TestListenerDeliversBareTriggers(t *testing.T) {
	srv := newWSServer(t)
	l := NewListener(srv.wsURL(), "tok-1", "op-7", slog.New(slog.NewTextHandler(io.Discard, nil)))

	var fired atomic.Int64
	l.Subscribe(func() { fired.Add(1) })

	startListener(t, l)
	waitStatus(t, l, StatusConnected)

	req := <-srv.seen
	require.Equal(t, "tok-1", req.Header.Get("token"))
	require.Equal(t, "op-7", req.Header.Get("qilin-user-id"))
	require.NotEmpty(t, req.URL.Query().Get("client"))

	conn := <-srv.conns
	// Payload content is advisory; any data frame is a trigger.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"new_image"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`whatever`)))

	require.Eventually(t, func() bool { return fired.Load() == 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestSubscribeDisposerStopsDelivery(t *testing.T) {
	srv := newWSServer(t)
	l := NewListener(srv.wsURL(), "", "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	var first, second atomic.Int64
	remove := l.Subscribe(func() { first.Add(1) })
	l.Subscribe(func() { second.Add(1) })

	startListener(t, l)
	waitStatus(t, l, StatusConnected)
	conn := <-srv.conns

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`x`)))
	require.Eventually(t, func() bool { return second.Load() == 1 },
		2*time.Second, 5*time.Millisecond)

	remove()
	remove() // idempotent

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`y`)))
	require.Eventually(t, func() bool { return second.Load() == 2 },
		2*time.Second, 5*time.Millisecond)
	require.EqualValues(t, 1, first.Load())
}

func TestListenerReconnectsAfterDrop(t *testing.T) {
	srv := newWSServer(t)
	l := NewListener(srv.wsURL(), "", "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	var statuses []Status
	statusCh := make(chan Status, 8)
	l.OnStatus(func(s Status) { statusCh <- s })

	startListener(t, l)
	waitStatus(t, l, StatusConnected)

	conn := <-srv.conns
	conn.Close()

	// Redial happens after backoff; a second upgrade lands on the server.
	select {
	case <-srv.conns:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a reconnect")
	}
	waitStatus(t, l, StatusConnected)

	for len(statusCh) > 0 {
		statuses = append(statuses, <-statusCh)
	}
	require.Contains(t, statuses, StatusDisconnected)
}

func TestListenerGivesUpAfterMaxAttempts(t *testing.T) {
	// A plain HTTP server refuses the upgrade, so every dial fails.
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	l := NewListener("ws"+strings.TrimPrefix(srv.URL, "http"), "", "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		require.Equal(t, StatusError, l.Status())
	case <-time.After(30 * time.Second):
		t.Fatal("listener did not give up")
	}
}
