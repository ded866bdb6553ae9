package instance

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"momentum_go/internal/domain"
)

// Stats are realized totals since the instance started.
type Stats struct {
	Armed         int     `json:"armed"`
	Opened        int     `json:"opened"`
	Cancelled     int     `json:"cancelled"`
	FailedEntries int     `json:"failed_entries"`
	FailedExits   int     `json:"failed_exits"`
	Trades        int     `json:"trades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	GrossPnL      float64 `json:"gross_pnl"`
	Fees          float64 `json:"fees"`
	NetPnL        float64 `json:"net_pnl"`
}

func (s *Stats) record(p PnL) {
	s.Trades++
	if p.Net > 0 {
		s.Wins++
	} else {
		s.Losses++
	}
	s.GrossPnL += p.Gross
	s.Fees += p.EntryFee + p.ExitFee
	s.NetPnL += p.Net
}

// LogEntry is one line of the instance log ring.
type LogEntry struct {
	AtMs  int64  `json:"at_ms"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

type logRing struct {
	buf  []LogEntry
	next int
	full bool
}

func newLogRing(n int) *logRing { return &logRing{buf: make([]LogEntry, n)} }

func (r *logRing) add(e LogEntry) {
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// entries returns oldest first.
func (r *logRing) entries() []LogEntry {
	if !r.full {
		return append([]LogEntry(nil), r.buf[:r.next]...)
	}
	out := make([]LogEntry, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// logf writes to the ring and to slog.
func (in *Instance) logf(atMs int64, level slog.Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	in.logs.add(LogEntry{AtMs: atMs, Level: level.String(), Msg: msg})
	in.logger.Log(in.ctx(), level, msg)
}

// SignalView is the latest entry evaluation of one symbol.
type SignalView struct {
	Symbol      string        `json:"symbol"`
	PriceChgPct float64       `json:"price_chg_pct"`
	OIChgPct    float64       `json:"oi_chg_pct"`
	HoldLong    int           `json:"hold_long"`
	HoldShort   int           `json:"hold_short"`
	Side        domain.Side   `json:"side,omitempty"`
	Reason      domain.Reason `json:"reason,omitempty"`
	AtMs        int64         `json:"at_ms"`
}

// viewCache keeps the latest SignalView per symbol, evicting the oldest.
type viewCache struct {
	max   int
	views map[string]*SignalView
}

func newViewCache(max int) *viewCache {
	return &viewCache{max: max, views: make(map[string]*SignalView)}
}

func (c *viewCache) get(sym string, now time.Time) *SignalView {
	v, ok := c.views[sym]
	if !ok {
		if len(c.views) >= c.max {
			c.evictOldest()
		}
		v = &SignalView{Symbol: sym}
		c.views[sym] = v
	}
	v.AtMs = now.UnixMilli()
	return v
}

func (c *viewCache) evictOldest() {
	oldest := ""
	var at int64
	for sym, v := range c.views {
		if oldest == "" || v.AtMs < at {
			oldest, at = sym, v.AtMs
		}
	}
	delete(c.views, oldest)
}

func (c *viewCache) observe(sym string, s signalInputs, st *symbolState, now time.Time) {
	v := c.get(sym, now)
	v.PriceChgPct = s.PriceChgPct
	v.OIChgPct = s.OIChgPct
	v.HoldLong = st.holdLong
	v.HoldShort = st.holdShort
}

func (c *viewCache) setReason(sym string, side domain.Side, reason domain.Reason, now time.Time) {
	v := c.get(sym, now)
	v.Side = side
	v.Reason = reason
}

func (c *viewCache) list() []SignalView {
	out := make([]SignalView, 0, len(c.views))
	for _, v := range c.views {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// SymbolView is the externally visible state of one symbol.
type SymbolView struct {
	Symbol          string          `json:"symbol"`
	Phase           string          `json:"phase"`
	Pending         *PendingTrigger `json:"pending,omitempty"`
	Position        *Position       `json:"position,omitempty"`
	HoldLong        int             `json:"hold_long"`
	HoldShort       int             `json:"hold_short"`
	CooldownUntilMs int64           `json:"cooldown_until_ms,omitempty"`
	LastPrice       float64         `json:"last_price"`
}

// State is the full view returned to callers.
type State struct {
	ID          string           `json:"id"`
	Config      domain.BotConfig `json:"config"`
	CreatedAtMs int64            `json:"created_at_ms"`
	Stopped     bool             `json:"stopped"`
	Symbols     []SymbolView     `json:"symbols"`
	Stats       Stats            `json:"stats"`
	Logs        []LogEntry       `json:"logs"`
	Signals     []SignalView     `json:"signals"`
}

// Summary is the light per-tick view.
type Summary struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Mode     domain.Mode `json:"mode"`
	Pending  int         `json:"pending"`
	Open     int         `json:"open"`
	InFlight int         `json:"in_flight"`
	Stats    Stats       `json:"stats"`
}

// State returns a copy of the instance state. Symbols in IDLE with no hold
// progress are omitted.
func (in *Instance) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()

	st := State{
		ID:          in.id,
		Config:      in.cfg,
		CreatedAtMs: in.createdAt.UnixMilli(),
		Stopped:     in.stopped,
		Stats:       in.stats,
		Logs:        in.logs.entries(),
		Signals:     in.views.list(),
	}
	for sym, s := range in.states {
		if s.idle() {
			continue
		}
		v := SymbolView{
			Symbol:    sym,
			Phase:     s.phase.String(),
			HoldLong:  s.holdLong,
			HoldShort: s.holdShort,
			LastPrice: s.lastPrice,
		}
		if s.pending != nil {
			p := *s.pending
			v.Pending = &p
		}
		if s.position != nil {
			p := *s.position
			v.Position = &p
		}
		if !s.cooldownUntil.IsZero() {
			v.CooldownUntilMs = s.cooldownUntil.UnixMilli()
		}
		st.Symbols = append(st.Symbols, v)
	}
	sort.Slice(st.Symbols, func(i, j int) bool { return st.Symbols[i].Symbol < st.Symbols[j].Symbol })
	return st
}

// Summary counts pending, open and in-flight symbols.
func (in *Instance) Summary() Summary {
	in.mu.Lock()
	defer in.mu.Unlock()

	s := Summary{ID: in.id, Name: in.cfg.Name, Mode: in.cfg.Mode, Stats: in.stats}
	for _, st := range in.states {
		switch st.phase {
		case PhaseTriggerPending:
			s.Pending++
		case PhaseInPosition:
			s.Open++
		case PhaseOpening, PhaseClosing:
			s.InFlight++
		}
	}
	return s
}
