package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Status is the connection state surfaced to the presentation layer.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "disconnected"
	}
}

const (
	heartbeatInterval    = 4 * time.Second
	pongWait             = 10 * time.Second
	maxReconnectAttempts = 5
)

// Listener maintains the push-notification socket. Every data message
// received on the connection is a bare "new item may exist" trigger; the
// payload is advisory and never parsed for control flow.
type Listener struct {
	wsURL    string
	token    string
	userID   string
	clientID string
	logger   *slog.Logger
	dialer   *websocket.Dialer

	mu       sync.Mutex
	handlers map[int]func()
	nextID   int
	status   Status
	onStatus func(Status)
}

func NewListener(wsURL, token, userID string, logger *slog.Logger) *Listener {
	return &Listener{
		wsURL:    wsURL,
		token:    token,
		userID:   userID,
		clientID: uuid.NewString(),
		logger:   logger.With("component", "notify"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		handlers: make(map[int]func()),
	}
}

// Subscribe registers a notification handler and returns its disposer.
// The disposer is idempotent and safe after the listener has stopped.
func (l *Listener) Subscribe(fn func()) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}
}

// OnStatus sets the status callback. Set it before Run.
func (l *Listener) OnStatus(fn func(Status)) {
	l.mu.Lock()
	l.onStatus = fn
	l.mu.Unlock()
}

func (l *Listener) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Run dials the socket and redials with exponential backoff on failure.
// After maxReconnectAttempts consecutive failed dials it gives up and
// returns; the session's idle-polling backstop keeps the queue moving
// without pushes.
func (l *Listener) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	attempts := 0
	for {
		conn, err := l.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempts++
			l.logger.Warn("dial failed", "attempt", attempts, "err", err)
			if attempts >= maxReconnectAttempts {
				l.setStatus(StatusError)
				return fmt.Errorf("notification socket unavailable after %d attempts: %w", attempts, err)
			}
			wait := bo.NextBackOff()
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attempts = 0
		bo.Reset()
		l.setStatus(StatusConnected)
		l.logger.Info("connected", "url", l.wsURL)

		err = l.serve(ctx, conn)
		l.setStatus(StatusDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn("connection lost, reconnecting", "err", err)
	}
}

func (l *Listener) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(l.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("client", l.clientID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if l.token != "" {
		header.Set("token", l.token)
		header.Set("qilin-user-id", l.userID)
	}

	conn, resp, err := l.dialer.DialContext(ctx, u.String(), header)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", l.wsURL, err)
	}
	return conn, nil
}

// serve reads until the connection breaks or ctx is cancelled. Pings go
// out every heartbeatInterval; a missing pong fails the read deadline.
func (l *Listener) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					return
				}
			case <-ctx.Done():
				// Unblocks the pending ReadMessage.
				conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		l.logger.Debug("notification received", "bytes", len(payload))
		l.dispatch()
	}
}

func (l *Listener) dispatch() {
	l.mu.Lock()
	fns := make([]func(), 0, len(l.handlers))
	for _, fn := range l.handlers {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (l *Listener) setStatus(s Status) {
	l.mu.Lock()
	l.status = s
	fn := l.onStatus
	l.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}
