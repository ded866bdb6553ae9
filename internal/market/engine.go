package market

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"momentum_go/internal/domain"
	"momentum_go/internal/event"
)

// Tick is emitted once per elapsed wall-clock second after staged data has
// been committed.
type Tick struct {
	Time   time.Time
	Second int64
}

// TickHandler is invoked on the engine's tick goroutine.
type TickHandler func(Tick)

// UniverseSource loads the instrument universe and seeds 24h ticker stats.
type UniverseSource interface {
	FetchInstruments(ctx context.Context) ([]domain.Instrument, error)
	FetchTickers(ctx context.Context) ([]event.TickerUpdate, error)
}

// Stream is the subscribe side of the tick/kline connection.
type Stream interface {
	Subscribe(ctx context.Context, topics []string) error
	Unsubscribe(ctx context.Context, topics []string) error
}

// sampleCarryForward bounds how long a symbol without updates keeps getting
// per-second samples.
const sampleCarryForward = 30 * time.Second

// Config tunes the engine.
type Config struct {
	SampleCapacity  int
	TurnoverHistory int
	InboxSize       int
	MaxUniverse     int
	UniverseRefresh time.Duration
	SafetyReconcile time.Duration
	SubscribeChunk  int
	SubscribeDelay  time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SampleCapacity:  1000,
		TurnoverHistory: 20,
		InboxSize:       8192,
		MaxUniverse:     500,
		UniverseRefresh: 15 * time.Minute,
		SafetyReconcile: 45 * time.Second,
		SubscribeChunk:  10,
		SubscribeDelay:  150 * time.Millisecond,
	}
}

// Engine is the market data engine. Ingested events are staged by the run
// loop and only committed to history at each one-second boundary, so tick
// handlers always observe a state that does not change under them.
type Engine struct {
	cfg    Config
	source UniverseSource
	stream Stream
	now    func() time.Time

	inbox          chan event.Event
	pendingTickers map[string]*event.TickerUpdate
	pendingSeeds   map[string]*event.TickerUpdate
	pendingKlines  []*event.KlineUpdate

	mu          sync.RWMutex
	instruments map[string]domain.Instrument
	tickers     map[string]domain.Ticker
	histories   map[string]*SampleHistory
	windows     map[string]*turnoverWindow
	policy      SelectionPolicy
	lastSecond  int64
	skipped     int64

	handlersMu sync.Mutex
	handlers   []TickHandler

	subMu      sync.Mutex
	subscribed map[string]struct{}
	kick       chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine. source and stream may be nil in tests.
func NewEngine(cfg Config, source UniverseSource, stream Stream) *Engine {
	def := DefaultConfig()
	if cfg.SampleCapacity <= 0 {
		cfg.SampleCapacity = def.SampleCapacity
	}
	if cfg.TurnoverHistory <= 0 {
		cfg.TurnoverHistory = def.TurnoverHistory
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = def.InboxSize
	}
	if cfg.MaxUniverse <= 0 {
		cfg.MaxUniverse = def.MaxUniverse
	}
	if cfg.UniverseRefresh <= 0 {
		cfg.UniverseRefresh = def.UniverseRefresh
	}
	if cfg.SafetyReconcile <= 0 {
		cfg.SafetyReconcile = def.SafetyReconcile
	}
	if cfg.SubscribeChunk <= 0 {
		cfg.SubscribeChunk = def.SubscribeChunk
	}
	return &Engine{
		cfg:            cfg,
		source:         source,
		stream:         stream,
		now:            time.Now,
		inbox:          make(chan event.Event, cfg.InboxSize),
		pendingTickers: make(map[string]*event.TickerUpdate),
		pendingSeeds:   make(map[string]*event.TickerUpdate),
		instruments:    make(map[string]domain.Instrument),
		tickers:        make(map[string]domain.Ticker),
		histories:      make(map[string]*SampleHistory),
		windows:        make(map[string]*turnoverWindow),
		subscribed:     make(map[string]struct{}),
		kick:           make(chan struct{}, 1),
	}
}

// AttachStream sets the subscribe side after construction, for streams
// that publish into this engine's inbox. Call before Start.
func (e *Engine) AttachStream(s Stream) { e.stream = s }

// SetClock replaces the wall clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Inbox returns the channel stream workers publish parsed events to.
func (e *Engine) Inbox() chan<- event.Event { return e.inbox }

// OnTick registers a per-second callback.
func (e *Engine) OnTick(h TickHandler) {
	e.handlersMu.Lock()
	e.handlers = append(e.handlers, h)
	e.handlersMu.Unlock()
}

// Start loads the universe and launches the tick, refresh and reconcile loops.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	e.refreshUniverse(ctx)
	e.seedStats(ctx)

	e.wg.Add(3)
	go e.run(ctx)
	go e.refreshLoop(ctx)
	go e.reconcileLoop(ctx)

	slog.Info("Market engine started", slog.Int("instruments", e.instrumentCount()))
	return nil
}

// Stop terminates all loops and waits for them.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	timer := time.NewTimer(untilNextSecond(e.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Market engine stopping...")
			return
		case ev := <-e.inbox:
			e.stage(ev)
		case <-timer.C:
			e.drain()
			e.Step(e.now())
			timer.Reset(untilNextSecond(e.now()))
		}
	}
}

func untilNextSecond(now time.Time) time.Duration {
	return now.Truncate(time.Second).Add(time.Second).Sub(now)
}

// drain stages whatever is already queued without blocking.
func (e *Engine) drain() {
	for {
		select {
		case ev := <-e.inbox:
			e.stage(ev)
		default:
			return
		}
	}
}

// stage merges an event into the pending buffer. Only the run loop calls it.
func (e *Engine) stage(ev event.Event) {
	switch u := ev.(type) {
	case *event.TickerUpdate:
		// Seeds and live updates never merge so a snapshot cannot pass as live.
		pending := e.pendingTickers
		if u.Seed {
			pending = e.pendingSeeds
		}
		p, ok := pending[u.Symbol]
		if !ok {
			cp := *u
			pending[u.Symbol] = &cp
			return
		}
		mergeTickerUpdate(p, u)
	case *event.KlineUpdate:
		e.pendingKlines = append(e.pendingKlines, u)
	}
}

func mergeTickerUpdate(dst, src *event.TickerUpdate) {
	if src.MarkPrice > 0 {
		dst.MarkPrice = src.MarkPrice
	}
	if src.LastPrice > 0 {
		dst.LastPrice = src.LastPrice
	}
	if src.OpenInterest > 0 {
		dst.OpenInterest = src.OpenInterest
	}
	if src.Turnover24h > 0 {
		dst.Turnover24h = src.Turnover24h
	}
	if src.High24h > 0 {
		dst.High24h = src.High24h
	}
	if src.Low24h > 0 {
		dst.Low24h = src.Low24h
	}
	if src.HasChange {
		dst.Change24hPct = src.Change24hPct
		dst.HasChange = true
	}
	if src.TsMs > dst.TsMs {
		dst.TsMs = src.TsMs
	}
}

// Step commits staged data for the second of now and fires tick handlers.
// It fires at most once per wall-clock second. Seconds missed because the
// previous tick overran are not replayed; they are counted and logged.
func (e *Engine) Step(now time.Time) bool {
	sec := now.Unix()

	e.mu.Lock()
	if sec <= e.lastSecond {
		e.mu.Unlock()
		return false
	}
	if gap := sec - e.lastSecond - 1; e.lastSecond > 0 && gap > 0 {
		e.skipped += gap
		slog.Warn("Market tick skipped seconds",
			slog.Int64("skipped", gap),
			slog.Int64("second", sec),
			slog.Int64("total_skipped", e.skipped))
	}
	// Seeds first: a live update staged in the same second wins.
	for sym, u := range e.pendingSeeds {
		t := e.tickers[sym]
		t.Symbol = sym
		applyTicker(&t, u, now)
		e.tickers[sym] = t
	}
	for sym, u := range e.pendingTickers {
		t := e.tickers[sym]
		t.Symbol = sym
		applyTicker(&t, u, now)
		e.tickers[sym] = t
		if t.MarkPrice <= 0 {
			continue
		}
		h, ok := e.histories[sym]
		if !ok {
			h = NewSampleHistory(sym, e.cfg.SampleCapacity)
			e.histories[sym] = h
		}
		h.Append(sec, t.MarkPrice, t.OpenInterest)
	}
	// Quiet seconds repeat the last live values until the feed goes stale.
	for sym, h := range e.histories {
		if _, staged := e.pendingTickers[sym]; staged {
			continue
		}
		t := e.tickers[sym]
		if t.MarkPrice <= 0 || now.UnixMilli()-t.UpdatedAtMs > sampleCarryForward.Milliseconds() {
			continue
		}
		h.Append(sec, t.MarkPrice, t.OpenInterest)
	}
	for _, k := range e.pendingKlines {
		key := windowKey(k.Symbol, k.Interval)
		w, ok := e.windows[key]
		if !ok {
			w = newTurnoverWindow(e.cfg.TurnoverHistory)
			e.windows[key] = w
		}
		w.update(k.CandleStartMs, k.Turnover)
	}
	e.lastSecond = sec
	e.mu.Unlock()

	clear(e.pendingTickers)
	clear(e.pendingSeeds)
	e.pendingKlines = e.pendingKlines[:0]

	e.handlersMu.Lock()
	handlers := make([]TickHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.handlersMu.Unlock()

	tick := Tick{Time: now, Second: sec}
	for _, h := range handlers {
		h(tick)
	}
	return true
}

func applyTicker(t *domain.Ticker, u *event.TickerUpdate, now time.Time) {
	ts := u.TsMs
	if ts == 0 {
		ts = now.UnixMilli()
	}
	if u.Seed {
		// REST seeds only fill 24h stats and prices never seen live.
		if u.Turnover24h > 0 {
			t.Turnover24h = u.Turnover24h
		}
		if u.High24h > 0 {
			t.High24h = u.High24h
		}
		if u.Low24h > 0 {
			t.Low24h = u.Low24h
		}
		if u.HasChange {
			t.Change24hPct = u.Change24hPct
		}
		if t.MarkPrice == 0 {
			t.MarkPrice = u.MarkPrice
		}
		if t.LastPrice == 0 {
			t.LastPrice = u.LastPrice
		}
		return
	}
	if u.MarkPrice > 0 {
		t.MarkPrice = u.MarkPrice
	}
	if u.LastPrice > 0 {
		t.LastPrice = u.LastPrice
	}
	if u.OpenInterest > 0 {
		t.OpenInterest = u.OpenInterest
		t.OIUpdatedAtMs = ts
	}
	if u.Turnover24h > 0 {
		t.Turnover24h = u.Turnover24h
	}
	if u.High24h > 0 {
		t.High24h = u.High24h
	}
	if u.Low24h > 0 {
		t.Low24h = u.Low24h
	}
	if u.HasChange {
		t.Change24hPct = u.Change24hPct
	}
	t.UpdatedAtMs = ts
}

func windowKey(symbol, interval string) string { return symbol + "|" + interval }

// SkippedSeconds counts wall-clock seconds that never got a tick.
func (e *Engine) SkippedSeconds() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.skipped
}

// Snapshot returns the latest committed ticker fields.
func (e *Engine) Snapshot(symbol string) (domain.Ticker, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tickers[symbol]
	return t, ok
}

// AtWindow returns the sample committed at exactly second.
func (e *Engine) AtWindow(symbol string, second int64) (domain.MarketSample, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.histories[symbol]
	if !ok {
		return domain.MarketSample{}, false
	}
	return h.At(second)
}

// TrendOK reports whether the last k one-second returns all move toward side.
func (e *Engine) TrendOK(symbol string, k int, side domain.Side) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.histories[symbol]
	if !ok {
		return false
	}
	return h.TrendOK(k, side)
}

// TurnoverGate returns the turnover window view for (symbol, interval).
func (e *Engine) TurnoverGate(symbol, interval string) TurnoverGate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.windows[windowKey(symbol, interval)]
	if !ok {
		return TurnoverGate{}
	}
	return w.gate()
}

// OIAgeSec returns seconds since the last open-interest update, or +Inf.
func (e *Engine) OIAgeSec(symbol string) float64 {
	e.mu.RLock()
	t, ok := e.tickers[symbol]
	e.mu.RUnlock()
	if !ok || t.OIUpdatedAtMs == 0 {
		return math.Inf(1)
	}
	age := float64(e.now().UnixMilli()-t.OIUpdatedAtMs) / 1000
	if age < 0 {
		return 0
	}
	return age
}

// Instrument returns the instrument metadata for symbol.
func (e *Engine) Instrument(symbol string) (domain.Instrument, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	in, ok := e.instruments[symbol]
	return in, ok
}

// EligibleSymbols ranks universe instruments by descending 24h turnover,
// keeping those above both thresholds, capped by the selection policy.
func (e *Engine) EligibleSymbols(turnoverMin, volMin float64) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rankLocked(turnoverMin, volMin, e.policy.Cap)
}

// rankLocked returns at most limit eligible symbols, never more than
// MaxUniverse. mu must be held.
func (e *Engine) rankLocked(turnoverMin, volMin float64, limit int) []string {
	if limit > e.cfg.MaxUniverse {
		limit = e.cfg.MaxUniverse
	}
	if limit <= 0 {
		return nil
	}

	type ranked struct {
		symbol   string
		turnover float64
	}
	candidates := make([]ranked, 0, len(e.instruments))
	for sym := range e.instruments {
		t, ok := e.tickers[sym]
		if !ok {
			continue
		}
		if t.Turnover24h <= turnoverMin || t.Volatility24hPct() <= volMin {
			continue
		}
		candidates = append(candidates, ranked{sym, t.Turnover24h})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].turnover == candidates[j].turnover {
			return candidates[i].symbol < candidates[j].symbol
		}
		return candidates[i].turnover > candidates[j].turnover
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.symbol
	}
	return out
}

// DesiredSymbols is the union of the aggregate eligible set, every
// per-instance selection and the pinned symbols, in first-seen order.
func (e *Engine) DesiredSymbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p := e.policy
	out := e.rankLocked(p.TurnoverMin, p.VolMin, p.Cap)
	seen := make(map[string]struct{}, len(out)+len(p.Pinned))
	for _, s := range out {
		seen[s] = struct{}{}
	}
	add := func(syms []string) {
		for _, s := range syms {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	for _, sel := range p.Selections {
		add(e.rankLocked(sel.TurnoverMin, sel.VolMin, min(sel.Cap, p.Cap)))
	}
	add(p.Pinned)
	return out
}

// Policy returns the current selection policy.
func (e *Engine) Policy() SelectionPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// ApplyPolicy replaces the whole selection policy and triggers reconciliation.
func (e *Engine) ApplyPolicy(p SelectionPolicy) {
	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()
	e.requestReconcile()
}

// SetActiveIntervals replaces the kline intervals to subscribe.
func (e *Engine) SetActiveIntervals(intervals []string) {
	e.mu.Lock()
	e.policy.Intervals = append([]string(nil), intervals...)
	e.mu.Unlock()
	e.requestReconcile()
}

// SetSelectionPolicy replaces the cap and thresholds.
func (e *Engine) SetSelectionPolicy(cap int, turnoverMin, volMin float64) {
	e.mu.Lock()
	e.policy.Cap = cap
	e.policy.TurnoverMin = turnoverMin
	e.policy.VolMin = volMin
	e.mu.Unlock()
	e.requestReconcile()
}

// SetPinnedSymbols replaces the always-subscribed symbols.
func (e *Engine) SetPinnedSymbols(symbols []string) {
	e.mu.Lock()
	e.policy.Pinned = append([]string(nil), symbols...)
	e.mu.Unlock()
	e.requestReconcile()
}

func (e *Engine) instrumentCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.instruments)
}
