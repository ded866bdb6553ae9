package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Write while no session is open.
var ErrNotConnected = errors.New("ws not connected")

// WSHandler supplies the venue-specific parts of a WSWorker.
type WSHandler interface {
	Name() string
	Endpoint() string
	// OnConnect runs on every new session before any message is read.
	// Writes are allowed here.
	OnConnect(ctx context.Context) error
	OnMessage(ctx context.Context, msg []byte)
	// Heartbeat sends the venue keepalive.
	Heartbeat(ctx context.Context) error
}

// WSOptions tunes a WSWorker. Zero fields take DefaultWSOptions values.
type WSOptions struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
}

func DefaultWSOptions() WSOptions {
	return WSOptions{
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     20 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

func (o WSOptions) withDefaults() WSOptions {
	d := DefaultWSOptions()
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	return o
}

// wsSession is one dialed connection. It is closed exactly once.
type wsSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
	closed  chan struct{}
}

func (s *wsSession) write(msgType int, data []byte, timeout time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(timeout))
	return s.conn.WriteMessage(msgType, data)
}

func (s *wsSession) close() {
	s.once.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

// WSWorker keeps a single WebSocket session alive, redialing with jittered
// exponential backoff until stopped.
type WSWorker struct {
	h    WSHandler
	opts WSOptions

	mu   sync.Mutex
	cur  *wsSession
	stop context.CancelFunc
	done chan struct{}

	sessions atomic.Uint64
}

func NewWSWorker(h WSHandler, opts WSOptions) *WSWorker {
	return &WSWorker{h: h, opts: opts.withDefaults()}
}

// Start launches the dial loop. Calling it twice is a no-op.
func (w *WSWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	ctx, w.stop = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx)
}

// Stop closes the current session and waits for the loop to exit.
func (w *WSWorker) Stop() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.mu.Unlock()
	if stop == nil {
		return
	}
	stop()
	<-done
}

// Connected reports whether a session is open.
func (w *WSWorker) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur != nil
}

// Sessions counts successful dials.
func (w *WSWorker) Sessions() uint64 { return w.sessions.Load() }

// Write sends one frame on the current session.
func (w *WSWorker) Write(msgType int, data []byte) error {
	w.mu.Lock()
	s := w.cur
	w.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	return s.write(msgType, data, w.opts.WriteTimeout)
}

func (w *WSWorker) run(ctx context.Context) {
	defer close(w.done)

	for attempt := 0; ; {
		s, err := w.dial(ctx)
		if err == nil {
			attempt = 0
			w.serve(ctx, s)
		} else if ctx.Err() == nil {
			delay := Jitter(CalculateBackoff(attempt), 0.2)
			slog.Warn("WS dial failed",
				slog.String("ws", w.h.Name()),
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", delay),
				slog.Any("error", err))
			attempt++
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (w *WSWorker) dial(ctx context.Context) (*wsSession, error) {
	d := websocket.Dialer{HandshakeTimeout: w.opts.HandshakeTimeout}
	hdr := http.Header{}
	hdr.Set("User-Agent", GetUserAgent())
	conn, _, err := d.DialContext(ctx, w.h.Endpoint(), hdr)
	if err != nil {
		return nil, err
	}
	return &wsSession{conn: conn, closed: make(chan struct{})}, nil
}

// serve owns s until it closes. The session is published before OnConnect
// so the handler can subscribe.
func (w *WSWorker) serve(ctx context.Context, s *wsSession) {
	w.mu.Lock()
	w.cur = s
	w.mu.Unlock()
	n := w.sessions.Add(1)

	var wg sync.WaitGroup
	defer func() {
		s.close()
		w.mu.Lock()
		if w.cur == s {
			w.cur = nil
		}
		w.mu.Unlock()
		wg.Wait()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			s.close()
		case <-s.closed:
		}
	}()
	go func() {
		defer wg.Done()
		w.heartbeat(ctx, s)
	}()

	if err := w.h.OnConnect(ctx); err != nil {
		slog.Warn("WS session setup failed", slog.String("ws", w.h.Name()), slog.Any("error", fmt.Errorf("on connect: %w", err)))
		return
	}
	slog.Info("WS connected", slog.String("ws", w.h.Name()), slog.Uint64("session", n))

	for {
		s.conn.SetReadDeadline(time.Now().Add(w.opts.ReadTimeout))
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("WS session closed", slog.String("ws", w.h.Name()), slog.Any("error", err))
			}
			return
		}
		w.h.OnMessage(ctx, msg)
	}
}

func (w *WSWorker) heartbeat(ctx context.Context, s *wsSession) {
	t := time.NewTicker(w.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-t.C:
			if err := w.h.Heartbeat(ctx); err != nil {
				slog.Warn("WS heartbeat failed", slog.String("ws", w.h.Name()), slog.Any("error", err))
				s.close()
				return
			}
		}
	}
}
