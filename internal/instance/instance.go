package instance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"momentum_go/internal/domain"
	"momentum_go/internal/execution"
	"momentum_go/internal/market"
)

// MarketView is the read-only market data an instance evaluates against.
type MarketView interface {
	Snapshot(symbol string) (domain.Ticker, bool)
	AtWindow(symbol string, second int64) (domain.MarketSample, bool)
	TrendOK(symbol string, k int, side domain.Side) bool
	TurnoverGate(symbol, interval string) market.TurnoverGate
	OIAgeSec(symbol string) float64
	Instrument(symbol string) (domain.Instrument, bool)
}

const (
	logRingSize    = 200
	signalViewCap  = 300
	diagThrottle   = 30 * time.Second
	resultCapacity = 64
)

// Options builds an Instance.
type Options struct {
	ID       string
	Config   domain.BotConfig
	Market   MarketView
	Executor execution.Executor
	Sink     domain.Sink
	Now      func() time.Time
}

// Instance runs one bot configuration over its symbols. All state changes
// happen inside OnTick; live executions run on their own goroutines and
// hand results back through a channel drained at the next tick.
type Instance struct {
	id        string
	cfg       domain.BotConfig
	market    MarketView
	exec      execution.Executor
	sink      domain.Sink
	logger    *slog.Logger
	now       func() time.Time
	createdAt time.Time
	async     bool

	mu       sync.Mutex
	states   map[string]*symbolState
	stats    Stats
	logs     *logRing
	views    *viewCache
	lastDiag map[diagKey]time.Time
	results  chan result
	done     chan struct{}
	stopped  bool
}

// New creates an instance. The config is defaulted and validated again.
func New(opts Options) (*Instance, error) {
	cfg := opts.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Market == nil {
		return nil, fmt.Errorf("instance %s: market view is required", opts.ID)
	}
	exec := opts.Executor
	if exec == nil {
		exec = execution.NewPaperExecution()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Instance{
		id:        opts.ID,
		cfg:       cfg,
		market:    opts.Market,
		exec:      exec,
		sink:      opts.Sink,
		logger:    slog.With(slog.String("instance", opts.ID), slog.String("bot", cfg.Name)),
		now:       now,
		createdAt: now(),
		async:     cfg.Mode == domain.ModeLive,
		states:    make(map[string]*symbolState),
		logs:      newLogRing(logRingSize),
		views:     newViewCache(signalViewCap),
		lastDiag:  make(map[diagKey]time.Time),
		results:   make(chan result, resultCapacity),
		done:      make(chan struct{}),
	}, nil
}

func (in *Instance) ID() string               { return in.id }
func (in *Instance) Config() domain.BotConfig { return in.cfg }

// OnTick evaluates symbols in order. Symbols the instance still has work on
// (pending, open, cooling down) are managed even when absent from symbols,
// but only listed symbols may arm new entries.
func (in *Instance) OnTick(now time.Time, symbols []string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stopped {
		return
	}

	in.applyResults(now)

	sec := now.Unix()
	armed := 0
	listed := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if _, dup := listed[sym]; dup {
			continue
		}
		listed[sym] = struct{}{}
		in.evaluate(now, sec, sym, &armed, true)
	}
	for _, sym := range in.activeSymbolsLocked() {
		if _, ok := listed[sym]; !ok {
			in.evaluate(now, sec, sym, &armed, false)
		}
	}
	in.prune(listed)
}

func (in *Instance) evaluate(now time.Time, sec int64, sym string, armed *int, allowEntry bool) {
	snap, ok := in.market.Snapshot(sym)
	if !ok || snap.MarkPrice <= 0 || snap.LastPrice <= 0 || snap.OpenInterest <= 0 {
		return
	}
	st := in.state(sym)
	prevLast := st.lastPrice
	st.lastPrice = snap.LastPrice

	switch st.phase {
	case PhaseTriggerPending:
		in.checkCrossing(now, sym, st, prevLast, snap.LastPrice)
		return
	case PhaseOpening, PhaseClosing:
		in.diag(now, sym, "", domain.ReasonSymbolBusy, signalInputs{}, st.phase.String())
		return
	case PhaseInPosition:
		in.checkExit(now, sym, st, snap.MarkPrice)
		return
	case PhaseCooldown:
		if now.Before(st.cooldownUntil) {
			return
		}
		st.phase = PhaseIdle
		st.cooldownUntil = time.Time{}
	}

	if !allowEntry || *armed >= in.cfg.MaxNewEntriesPerTick {
		return
	}
	prev, ok := in.market.AtWindow(sym, sec-in.cfg.WindowSeconds())
	if !ok {
		st.resetHolds()
		in.diag(now, sym, "", domain.ReasonNoPrevCandle, signalInputs{}, "")
		return
	}
	if in.evaluateEntry(now, sym, st, snap, prev) {
		*armed++
	}
}

func (in *Instance) state(sym string) *symbolState {
	st, ok := in.states[sym]
	if !ok {
		st = &symbolState{}
		in.states[sym] = st
	}
	return st
}

// activeSymbolsLocked lists symbols with a non-idle phase, sorted.
func (in *Instance) activeSymbolsLocked() []string {
	var out []string
	for sym, st := range in.states {
		if st.phase != PhaseIdle {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// ActiveSymbols lists symbols the instance must keep receiving data for.
func (in *Instance) ActiveSymbols() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.activeSymbolsLocked()
}

// prune drops idle state for symbols that left the evaluated set.
func (in *Instance) prune(listed map[string]struct{}) {
	for sym, st := range in.states {
		if _, ok := listed[sym]; ok {
			continue
		}
		if st.idle() {
			delete(in.states, sym)
		}
	}
}

// CancelEntry clears a pending trigger and records an audit trade.
func (in *Instance) CancelEntry(symbol string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	st, ok := in.states[symbol]
	if in.stopped || !ok || st.phase != PhaseTriggerPending || st.pending == nil {
		return domain.ErrNotPending
	}
	p := st.pending
	st.pending = nil
	st.phase = PhaseIdle
	st.resetHolds()
	in.stats.Cancelled++

	nowMs := in.now().UnixMilli()
	in.appendTrade(domain.TradeRecord{
		Symbol:       symbol,
		Side:         p.Side,
		Reason:       domain.ExitManualCancel,
		TriggerPrice: p.TriggerPrice,
		OpenedAtMs:   p.CreatedAtMs,
		ClosedAtMs:   nowMs,
	})
	in.logf(nowMs, slog.LevelInfo, "%s %s trigger %.8g cancelled manually", symbol, p.Side, p.TriggerPrice)
	return nil
}

// Stop discards all per-symbol state. In-flight live results are ignored.
func (in *Instance) Stop() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stopped {
		return
	}
	in.stopped = true
	close(in.done)
	for sym := range in.states {
		delete(in.states, sym)
	}
	in.logger.Info("Instance stopped")
}

// Stopped reports whether Stop was called.
func (in *Instance) Stopped() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stopped
}

// SymbolStateCount is the number of symbols with retained runtime state.
func (in *Instance) SymbolStateCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.states)
}

func (in *Instance) ctx() context.Context { return context.Background() }
