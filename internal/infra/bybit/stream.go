package bybit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"momentum_go/internal/event"
	"momentum_go/internal/infra"
)

// Stream is the public linear WS connection. It turns ticker and kline
// pushes into inbox events and exposes topic subscription.
type Stream struct {
	url       string
	inbox     chan<- event.Event
	base      *infra.WSWorker
	onConnect func()
	dropped   atomic.Uint64
}

// NewStream creates a stream that publishes to inbox.
func NewStream(url string, inbox chan<- event.Event) *Stream {
	if url == "" {
		url = MainnetWSURL
	}
	s := &Stream{url: url, inbox: inbox}
	s.base = infra.NewWSWorker(s, infra.DefaultWSOptions())
	return s
}

// OnReconnect registers fn to run after every (re)connect. Set before Start.
func (s *Stream) OnReconnect(fn func()) { s.onConnect = fn }

func (s *Stream) Start(ctx context.Context) { s.base.Start(ctx) }
func (s *Stream) Stop()                     { s.base.Stop() }

// Dropped counts events discarded because the inbox was full.
func (s *Stream) Dropped() uint64 { return s.dropped.Load() }

func (s *Stream) Name() string     { return "bybit-linear" }
func (s *Stream) Endpoint() string { return s.url }

func (s *Stream) OnConnect(ctx context.Context) error {
	if s.onConnect != nil {
		s.onConnect()
	}
	return nil
}

func (s *Stream) Heartbeat(ctx context.Context) error {
	return s.writeOp(wsOp{Op: "ping"})
}

func (s *Stream) Subscribe(ctx context.Context, topics []string) error {
	return s.writeOp(wsOp{Op: "subscribe", Args: topics})
}

func (s *Stream) Unsubscribe(ctx context.Context, topics []string) error {
	return s.writeOp(wsOp{Op: "unsubscribe", Args: topics})
}

func (s *Stream) writeOp(op wsOp) error {
	b, err := json.Marshal(op)
	if err != nil {
		return err
	}
	return s.base.Write(websocket.TextMessage, b)
}

// OnMessage never fails: malformed frames are dropped.
func (s *Stream) OnMessage(ctx context.Context, msg []byte) {
	var m wsMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return
	}
	if m.Op != "" {
		if m.Success != nil && !*m.Success {
			slog.Warn("Bybit WS op rejected", slog.String("op", m.Op), slog.String("msg", m.RetMsg))
		}
		return
	}

	switch {
	case strings.HasPrefix(m.Topic, "tickers."):
		s.handleTicker(m)
	case strings.HasPrefix(m.Topic, "kline."):
		s.handleKline(m)
	}
}

func (s *Stream) handleTicker(m wsMessage) {
	symbol := strings.TrimPrefix(m.Topic, "tickers.")
	var raw tickerRaw
	if err := json.Unmarshal(m.Data, &raw); err != nil {
		return
	}
	u, ok := tickerFromRaw(raw, symbol, m.Ts)
	if !ok {
		return
	}
	s.publish(&u)
}

func (s *Stream) handleKline(m wsMessage) {
	parts := strings.Split(m.Topic, ".")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return
	}
	var bars []wsKline
	if err := json.Unmarshal(m.Data, &bars); err != nil {
		return
	}
	for _, b := range bars {
		turnover, ok := parseNumber(b.Turnover)
		if !ok || turnover < 0 || b.Start <= 0 {
			continue
		}
		s.publish(&event.KlineUpdate{
			BaseEvent:     event.BaseEvent{Symbol: parts[2], TsMs: m.Ts},
			Interval:      parts[1],
			CandleStartMs: b.Start,
			Turnover:      turnover,
			Confirmed:     b.Confirm,
		})
	}
}

func (s *Stream) publish(ev event.Event) {
	select {
	case s.inbox <- ev:
	default:
		if n := s.dropped.Add(1); n%1000 == 1 {
			slog.Warn("Market inbox full, dropping stream events", slog.Uint64("dropped", n))
		}
	}
}
