package instance

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum_go/internal/domain"
	"momentum_go/internal/execution"
	"momentum_go/internal/market"
)

type fakeMarket struct {
	tickers     map[string]domain.Ticker
	samples     map[string]map[int64]domain.MarketSample
	gates       map[string]market.TurnoverGate
	oiAge       map[string]float64
	trendFail   map[string]bool
	instruments map[string]domain.Instrument
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		tickers:     make(map[string]domain.Ticker),
		samples:     make(map[string]map[int64]domain.MarketSample),
		gates:       make(map[string]market.TurnoverGate),
		oiAge:       make(map[string]float64),
		trendFail:   make(map[string]bool),
		instruments: make(map[string]domain.Instrument),
	}
}

func (m *fakeMarket) Snapshot(s string) (domain.Ticker, bool) { t, ok := m.tickers[s]; return t, ok }
func (m *fakeMarket) AtWindow(s string, sec int64) (domain.MarketSample, bool) {
	v, ok := m.samples[s][sec]
	return v, ok
}
func (m *fakeMarket) TrendOK(s string, k int, side domain.Side) bool { return !m.trendFail[s] }
func (m *fakeMarket) TurnoverGate(s, iv string) market.TurnoverGate  { return m.gates[s] }
func (m *fakeMarket) OIAgeSec(s string) float64                       { return m.oiAge[s] }
func (m *fakeMarket) Instrument(s string) (domain.Instrument, bool) {
	i, ok := m.instruments[s]
	return i, ok
}

// set makes symbol show price/OI now and a window-ago sample at prevMark/prevOI.
func (m *fakeMarket) set(sym string, now time.Time, windowSec int64, prevMark, mark, last, prevOI, oi float64) {
	m.tickers[sym] = domain.Ticker{Symbol: sym, MarkPrice: mark, LastPrice: last, OpenInterest: oi}
	if m.samples[sym] == nil {
		m.samples[sym] = make(map[int64]domain.MarketSample)
	}
	sec := now.Unix() - windowSec
	m.samples[sym][sec] = domain.MarketSample{Symbol: sym, Second: sec, MarkPrice: prevMark, OpenInterest: prevOI}
	if _, ok := m.instruments[sym]; !ok {
		m.instruments[sym] = domain.Instrument{
			Symbol:   sym,
			TickSize: decimal.RequireFromString("0.01"),
			QtyStep:  decimal.RequireFromString("0.001"),
		}
	}
}

type recordingSink struct {
	mu      sync.Mutex
	trades  []domain.TradeRecord
	signals []domain.SignalRow
}

func (s *recordingSink) AppendTrade(r domain.TradeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, r)
}

func (s *recordingSink) AppendSignal(r domain.SignalRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, r)
}

func (s *recordingSink) reasons() []domain.Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reason
	for _, r := range s.signals {
		out = append(out, r.Reason)
	}
	return out
}

func baseConfig() domain.BotConfig {
	return domain.BotConfig{
		Name:              "test",
		Mode:              domain.ModePaper,
		Direction:         domain.DirectionBoth,
		WindowMinutes:     1,
		PriceThresholdPct: 0.2,
		OIThresholdPct:    0,
		HoldSeconds:       1,
		Leverage:          1,
		MarginUSDT:        100,
		TPROIPct:          10,
		SLROIPct:          10,
		CooldownMinutes:   1,
		UniverseCap:       10,
	}
}

func newTestInstance(t *testing.T, cfg domain.BotConfig, m MarketView, exec execution.Executor) (*Instance, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	in, err := New(Options{ID: "inst-1", Config: cfg, Market: m, Executor: exec, Sink: sink})
	require.NoError(t, err)
	return in, sink
}

var t0 = time.Unix(1_700_000_000, 0)

func TestOnTick_ArmsLongTrigger(t *testing.T) {
	m := newFakeMarket()
	m.set("BTCUSDT", t0, 60, 100, 100.5, 100.5, 1000, 1000)
	in, sink := newTestInstance(t, baseConfig(), m, nil)

	in.OnTick(t0, []string{"BTCUSDT"})

	st := in.states["BTCUSDT"]
	require.Equal(t, PhaseTriggerPending, st.phase)
	assert.Equal(t, domain.SideLong, st.pending.Side)
	assert.Equal(t, 100.5, st.pending.TriggerPrice)
	assert.Equal(t, 0, st.holdLong)
	assert.Contains(t, sink.reasons(), domain.ReasonTriggerArmed)
	assert.Equal(t, 1, in.Summary().Pending)
}

func TestOnTick_ArmsShortTriggerWithOffset(t *testing.T) {
	cfg := baseConfig()
	cfg.Direction = domain.DirectionShort
	cfg.EntryOffsetPct = 0.1
	m := newFakeMarket()
	m.set("ETHUSDT", t0, 60, 100, 99.5, 99.5, 1000, 1010)
	in, _ := newTestInstance(t, cfg, m, nil)

	in.OnTick(t0, []string{"ETHUSDT"})

	p := in.states["ETHUSDT"].pending
	require.NotNil(t, p)
	assert.Equal(t, domain.SideShort, p.Side)
	raw := 99.5 * (1 - 0.1/100)
	assert.GreaterOrEqual(t, p.TriggerPrice, raw)
	assert.InDelta(t, 99.41, p.TriggerPrice, 1e-9)
}

func TestOnTick_StaleOIResetsHold(t *testing.T) {
	cfg := baseConfig()
	cfg.OIMaxAgeSec = 5
	m := newFakeMarket()
	m.set("BTCUSDT", t0, 60, 100, 100.5, 100.5, 1000, 1000)
	m.oiAge["BTCUSDT"] = 10
	in, sink := newTestInstance(t, cfg, m, nil)

	in.OnTick(t0, []string{"BTCUSDT"})

	st := in.states["BTCUSDT"]
	assert.Equal(t, PhaseIdle, st.phase)
	assert.Equal(t, 0, st.holdLong)
	assert.Equal(t, []domain.Reason{domain.ReasonOIStale}, sink.reasons())
	assert.Equal(t, domain.SideLong, sink.signals[0].Side)
}

func TestOnTick_HoldCounterOnlyGrowsWhenAllGatesPass(t *testing.T) {
	cfg := baseConfig()
	cfg.HoldSeconds = 3
	cfg.Direction = domain.DirectionLong
	cfg.TrendConfirmSeconds = 2
	m := newFakeMarket()
	in, sink := newTestInstance(t, cfg, m, nil)

	steps := []struct {
		trendFail bool
		wantHold  int
	}{
		{false, 1},
		{false, 2},
		{true, 0},
		{false, 1},
		{false, 2},
	}
	for i, s := range steps {
		now := t0.Add(time.Duration(i) * time.Second)
		m.set("BTCUSDT", now, 60, 100, 100.5, 100.5, 1000, 1000)
		m.trendFail["BTCUSDT"] = s.trendFail
		in.OnTick(now, []string{"BTCUSDT"})
		assert.Equal(t, s.wantHold, in.states["BTCUSDT"].holdLong, "step %d", i)
	}
	assert.Contains(t, sink.reasons(), domain.ReasonTrendFail)
	assert.Contains(t, sink.reasons(), domain.ReasonHoldNotMet)

	// third consecutive pass arms
	now := t0.Add(5 * time.Second)
	m.set("BTCUSDT", now, 60, 100, 100.5, 100.5, 1000, 1000)
	in.OnTick(now, []string{"BTCUSDT"})
	assert.Equal(t, PhaseTriggerPending, in.states["BTCUSDT"].phase)
}

func TestOnTick_NoPreviousSample(t *testing.T) {
	m := newFakeMarket()
	m.tickers["BTCUSDT"] = domain.Ticker{Symbol: "BTCUSDT", MarkPrice: 1, LastPrice: 1, OpenInterest: 1}
	in, sink := newTestInstance(t, baseConfig(), m, nil)

	in.OnTick(t0, []string{"BTCUSDT"})
	assert.Equal(t, []domain.Reason{domain.ReasonNoPrevCandle}, sink.reasons())
}

func TestOnTick_SkipsNonPositiveSnapshot(t *testing.T) {
	m := newFakeMarket()
	m.set("BTCUSDT", t0, 60, 100, 100.5, 100.5, 1000, 0)
	in, sink := newTestInstance(t, baseConfig(), m, nil)

	in.OnTick(t0, []string{"BTCUSDT"})
	assert.Empty(t, sink.reasons())
	assert.Equal(t, 0, in.SymbolStateCount())
}

func TestOnTick_TurnoverGateAppliesToLongOnly(t *testing.T) {
	cfg := baseConfig()
	cfg.TurnoverSpikePct = 50
	m := newFakeMarket()
	m.gates["UPUSDT"] = market.TurnoverGate{PrevTurnoverUSDT: 3000, MedianTurnoverUSDT: 2000, CurTurnoverUSDT: 3100, Ready: true}
	m.gates["DNUSDT"] = m.gates["UPUSDT"]
	m.set("UPUSDT", t0, 60, 100, 100.5, 100.5, 1000, 1000)
	m.set("DNUSDT", t0, 60, 100, 99.5, 99.5, 1000, 1000)
	cfg.MaxNewEntriesPerTick = 5
	in, sink := newTestInstance(t, cfg, m, nil)

	in.OnTick(t0, []string{"UPUSDT", "DNUSDT"})

	assert.Equal(t, PhaseIdle, in.states["UPUSDT"].phase)
	assert.Contains(t, sink.reasons(), domain.ReasonTurnoverGateFail)
	assert.Equal(t, PhaseTriggerPending, in.states["DNUSDT"].phase)
	assert.Equal(t, domain.SideShort, in.states["DNUSDT"].pending.Side)
}

func TestOnTick_MaxNewEntriesPerTick(t *testing.T) {
	m := newFakeMarket()
	for _, s := range []string{"AAAUSDT", "BBBUSDT", "CCCUSDT"} {
		m.set(s, t0, 60, 100, 101, 101, 1000, 1000)
	}
	cfg := baseConfig()
	cfg.MaxNewEntriesPerTick = 2
	in, _ := newTestInstance(t, cfg, m, nil)

	in.OnTick(t0, []string{"CCCUSDT", "AAAUSDT", "BBBUSDT"})

	assert.Equal(t, PhaseTriggerPending, in.states["CCCUSDT"].phase)
	assert.Equal(t, PhaseTriggerPending, in.states["AAAUSDT"].phase)
	_, armedThird := in.states["BBBUSDT"]
	if armedThird {
		assert.Equal(t, PhaseIdle, in.states["BBBUSDT"].phase)
	}
	assert.Equal(t, 2, in.Summary().Pending)
}

// armPending puts sym straight into TRIGGER_PENDING with a known last price.
func armPending(in *Instance, sym string, side domain.Side, trigger, lastPrice float64) {
	st := in.state(sym)
	st.phase = PhaseTriggerPending
	st.pending = &PendingTrigger{Side: side, TriggerPrice: trigger, CreatedAtMs: t0.UnixMilli()}
	st.lastPrice = lastPrice
}

func TestOnTick_CrossingOpensPaperPosition(t *testing.T) {
	m := newFakeMarket()
	m.set("BTCUSDT", t0, 60, 100, 100.02, 100.02, 1000, 1000)
	paper := execution.NewPaperExecution()
	in, _ := newTestInstance(t, baseConfig(), m, paper)
	armPending(in, "BTCUSDT", domain.SideLong, 100.00, 99.98)

	in.OnTick(t0, []string{"BTCUSDT"})

	st := in.states["BTCUSDT"]
	require.Equal(t, PhaseInPosition, st.phase)
	assert.Equal(t, 100.0, st.position.ActualEntryPrice)
	assert.Equal(t, 1.0, st.position.Qty)
	assert.InDelta(t, 110.0, st.position.TPPrice, 1e-9)
	assert.InDelta(t, 90.0, st.position.SLPrice, 1e-9)

	// same tick again must not fill twice
	in.OnTick(t0, []string{"BTCUSDT"})
	assert.Len(t, paper.GetFills(), 1)
}

func TestOnTick_NoCrossingKeepsPending(t *testing.T) {
	m := newFakeMarket()
	m.set("BTCUSDT", t0, 60, 100, 99.99, 99.99, 1000, 1000)
	in, _ := newTestInstance(t, baseConfig(), m, nil)
	armPending(in, "BTCUSDT", domain.SideLong, 100.00, 99.97)

	in.OnTick(t0, []string{"BTCUSDT"})
	assert.Equal(t, PhaseTriggerPending, in.states["BTCUSDT"].phase)
}

func TestOnTick_TakeProfitBooksTradeAndCoolsDown(t *testing.T) {
	m := newFakeMarket()
	m.set("BTCUSDT", t0, 60, 100, 100.02, 100.02, 1000, 1000)
	in, sink := newTestInstance(t, baseConfig(), m, nil)
	armPending(in, "BTCUSDT", domain.SideLong, 100.00, 99.98)
	in.OnTick(t0, []string{"BTCUSDT"})

	t1 := t0.Add(time.Second)
	m.set("BTCUSDT", t1, 60, 100, 110.5, 110.4, 1000, 1000)
	// exits are managed even after the symbol leaves the eligible set
	in.OnTick(t1, nil)

	st := in.states["BTCUSDT"]
	require.Equal(t, PhaseCooldown, st.phase)
	assert.Equal(t, t1.Add(time.Minute), st.cooldownUntil)

	require.Len(t, sink.trades, 1)
	tr := sink.trades[0]
	assert.Equal(t, domain.ExitTakeProfit, tr.Reason)
	assert.InDelta(t, 110.0, tr.ExitPrice, 1e-9)
	assert.Equal(t, (tr.ExitPrice-tr.ActualEntryPrice)*tr.Qty*domain.SideLong.Sign()-tr.EntryFee-tr.ExitFee, tr.NetPnL)
	assert.InDelta(t, 100*0.00055, tr.EntryFee, 1e-12)
	assert.InDelta(t, 110*0.0002, tr.ExitFee, 1e-12)
	assert.Equal(t, 1, in.State().Stats.Wins)

	// cooldown expires and the symbol goes back to idle evaluation
	t2 := t1.Add(time.Minute)
	m.set("BTCUSDT", t2, 60, 110.4, 110.4, 110.4, 1000, 1000)
	in.OnTick(t2, []string{"BTCUSDT"})
	assert.Equal(t, PhaseIdle, in.states["BTCUSDT"].phase)
}

func TestOnTick_ShortStopLoss(t *testing.T) {
	cfg := baseConfig()
	cfg.Leverage = 10
	m := newFakeMarket()
	m.set("BTCUSDT", t0, 60, 100, 99.99, 100.00, 1000, 1000)
	in, sink := newTestInstance(t, cfg, m, nil)
	armPending(in, "BTCUSDT", domain.SideShort, 100.00, 100.03)
	in.OnTick(t0, []string{"BTCUSDT"})
	require.Equal(t, PhaseInPosition, in.states["BTCUSDT"].phase)
	assert.InDelta(t, 101.0, in.states["BTCUSDT"].position.SLPrice, 1e-9)
	assert.Equal(t, 10.0, in.states["BTCUSDT"].position.Qty)

	t1 := t0.Add(time.Second)
	m.set("BTCUSDT", t1, 60, 100, 101.2, 101.2, 1000, 1000)
	in.OnTick(t1, []string{"BTCUSDT"})

	require.Len(t, sink.trades, 1)
	tr := sink.trades[0]
	assert.Equal(t, domain.ExitStopLoss, tr.Reason)
	assert.Less(t, tr.NetPnL, 0.0)
	assert.Equal(t, (tr.ExitPrice-tr.ActualEntryPrice)*tr.Qty*domain.SideShort.Sign()-tr.EntryFee-tr.ExitFee, tr.NetPnL)
}

func TestCancelEntry(t *testing.T) {
	m := newFakeMarket()
	in, sink := newTestInstance(t, baseConfig(), m, nil)
	armPending(in, "BTCUSDT", domain.SideLong, 100, 99)

	require.NoError(t, in.CancelEntry("BTCUSDT"))
	assert.Equal(t, PhaseIdle, in.states["BTCUSDT"].phase)
	require.Len(t, sink.trades, 1)
	assert.Equal(t, domain.ExitManualCancel, sink.trades[0].Reason)
	assert.Equal(t, 0.0, sink.trades[0].NetPnL)
	assert.Equal(t, 100.0, sink.trades[0].TriggerPrice)

	assert.ErrorIs(t, in.CancelEntry("BTCUSDT"), domain.ErrNotPending)
	assert.ErrorIs(t, in.CancelEntry("NOPEUSDT"), domain.ErrNotPending)
}

func TestDiagnosticsAreThrottled(t *testing.T) {
	cfg := baseConfig()
	cfg.OIMaxAgeSec = 1
	cfg.Direction = domain.DirectionLong
	m := newFakeMarket()
	m.oiAge["BTCUSDT"] = 100
	in, sink := newTestInstance(t, cfg, m, nil)

	for _, off := range []time.Duration{0, time.Second, 10 * time.Second, 31 * time.Second} {
		now := t0.Add(off)
		m.set("BTCUSDT", now, 60, 100, 100.5, 100.5, 1000, 1000)
		in.OnTick(now, []string{"BTCUSDT"})
	}
	assert.Equal(t, []domain.Reason{domain.ReasonOIStale, domain.ReasonOIStale}, sink.reasons())

	views := in.State().Signals
	require.Len(t, views, 1)
	assert.Equal(t, domain.ReasonOIStale, views[0].Reason)
	assert.InDelta(t, 0.5, views[0].PriceChgPct, 1e-9)
}

// gatedExecutor blocks opens until released.
type gatedExecutor struct {
	execution.PaperExecution
	release chan struct{}
	avg     float64
	err     error
}

func (g *gatedExecutor) OpenPosition(ctx context.Context, req execution.OpenRequest) (execution.Fill, error) {
	<-g.release
	if g.err != nil {
		return execution.Fill{}, g.err
	}
	return execution.Fill{OrderID: "x", AvgPrice: g.avg, Qty: req.Qty}, nil
}

func liveConfig() domain.BotConfig {
	cfg := baseConfig()
	cfg.Mode = domain.ModeLive
	return cfg
}

func TestLive_EntryResolvesOnNextTick(t *testing.T) {
	m := newFakeMarket()
	m.set("BTCUSDT", t0, 60, 100, 100.02, 100.02, 1000, 1000)
	exec := &gatedExecutor{release: make(chan struct{}), avg: 100.05}
	in, _ := newTestInstance(t, liveConfig(), m, exec)
	armPending(in, "BTCUSDT", domain.SideLong, 100.00, 99.98)

	in.OnTick(t0, []string{"BTCUSDT"})
	require.Equal(t, PhaseOpening, in.states["BTCUSDT"].phase)
	assert.Equal(t, 1, in.Summary().InFlight)

	close(exec.release)
	require.Eventually(t, func() bool { return len(in.results) == 1 }, time.Second, 5*time.Millisecond)

	in.OnTick(t0.Add(time.Second), []string{"BTCUSDT"})
	st := in.states["BTCUSDT"]
	require.Equal(t, PhaseInPosition, st.phase)
	assert.Equal(t, 100.05, st.position.ActualEntryPrice)
	assert.Equal(t, 100.0, st.position.EntryPrice)
}

func TestLive_RejectedEntryLeavesNothingBehind(t *testing.T) {
	m := newFakeMarket()
	m.set("BTCUSDT", t0, 60, 100, 100.02, 100.02, 1000, 1000)
	exec := &gatedExecutor{release: make(chan struct{}), err: &domain.ExecutionError{Op: "open", Symbol: "BTCUSDT", Err: errors.New("notional too small")}}
	close(exec.release)
	in, _ := newTestInstance(t, liveConfig(), m, exec)
	armPending(in, "BTCUSDT", domain.SideLong, 100.00, 99.98)

	in.OnTick(t0, []string{"BTCUSDT"})
	require.Eventually(t, func() bool { return len(in.results) == 1 }, time.Second, 5*time.Millisecond)
	in.OnTick(t0.Add(time.Second), nil)

	assert.Equal(t, 0, in.SymbolStateCount())
	state := in.State()
	assert.Equal(t, 1, state.Stats.FailedEntries)
	assert.Contains(t, state.Logs[len(state.Logs)-1].Msg, "entry aborted")
}

func TestLive_StopDropsStateAndIgnoresLateResult(t *testing.T) {
	m := newFakeMarket()
	m.set("BTCUSDT", t0, 60, 100, 100.02, 100.02, 1000, 1000)
	exec := &gatedExecutor{release: make(chan struct{}), avg: 100}
	in, sink := newTestInstance(t, liveConfig(), m, exec)
	armPending(in, "BTCUSDT", domain.SideLong, 100.00, 99.98)
	in.OnTick(t0, []string{"BTCUSDT"})
	require.Equal(t, PhaseOpening, in.states["BTCUSDT"].phase)

	in.Stop()
	assert.Equal(t, 0, in.SymbolStateCount())
	assert.True(t, in.Stopped())

	close(exec.release)
	time.Sleep(20 * time.Millisecond)
	in.OnTick(t0.Add(time.Second), []string{"BTCUSDT"})

	assert.Equal(t, 0, in.SymbolStateCount())
	assert.Empty(t, sink.trades)
	assert.ErrorIs(t, in.CancelEntry("BTCUSDT"), domain.ErrNotPending)
}

func TestComputePnL_Identity(t *testing.T) {
	tests := []struct {
		side              domain.Side
		entry, exit, qty  float64
		wantGrossPositive bool
	}{
		{domain.SideLong, 100, 110, 1, true},
		{domain.SideLong, 100, 95, 0.5, false},
		{domain.SideShort, 100, 90, 2, true},
		{domain.SideShort, 0.01234, 0.01301, 12345, false},
	}
	for _, tt := range tests {
		p := ComputePnL(tt.side, tt.entry, tt.exit, tt.qty, 0.00055, 0.0002)
		want := (tt.exit-tt.entry)*tt.qty*tt.side.Sign() - p.EntryFee - p.ExitFee
		assert.Equal(t, want, p.Net)
		assert.Equal(t, tt.wantGrossPositive, p.Gross > 0)
		assert.Equal(t, tt.entry*tt.qty*0.00055, p.EntryFee)
	}
}

func TestTriggerRoundingBias(t *testing.T) {
	ticks := []string{"0.0001", "0.01", "0.5", "5"}
	prices := []float64{0.012345, 1.23456, 99.987, 100.0049, 27123.33, 64999.99}
	offsets := []float64{0, 0.05, 0.37}
	for _, tick := range ticks {
		inst := domain.Instrument{Symbol: "X", TickSize: decimal.RequireFromString(tick)}
		for _, p := range prices {
			for _, off := range offsets {
				long := p * (1 + off/100)
				short := p * (1 - off/100)
				assert.LessOrEqual(t, inst.RoundTrigger(long, domain.SideLong), long, "tick %s price %v", tick, p)
				assert.GreaterOrEqual(t, inst.RoundTrigger(short, domain.SideShort), short, "tick %s price %v", tick, p)
			}
		}
	}
}

func TestCrossed(t *testing.T) {
	tests := []struct {
		prev, cur, trig float64
		want            bool
	}{
		{99.98, 100.02, 100, true},
		{100.02, 99.98, 100, true},
		{99.9, 100, 100, true},
		{99.9, 99.95, 100, false},
		{100.1, 100.2, 100, false},
		{0, 100.1, 100, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, crossed(tt.prev, tt.cur, tt.trig), "%v -> %v over %v", tt.prev, tt.cur, tt.trig)
	}
}

func TestExitLevels(t *testing.T) {
	tp, sl := ExitLevels(domain.SideShort, 200, 20, 40, 10)
	assert.InDelta(t, 196, tp, 1e-9)
	assert.InDelta(t, 201, sl, 1e-9)
	assert.False(t, math.IsNaN(tp))
}

func TestLogRingKeepsNewest(t *testing.T) {
	r := newLogRing(3)
	for i := 0; i < 5; i++ {
		r.add(LogEntry{AtMs: int64(i)})
	}
	got := r.entries()
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].AtMs)
	assert.Equal(t, int64(4), got[2].AtMs)
}

func TestViewCacheEvictsOldest(t *testing.T) {
	c := newViewCache(2)
	st := &symbolState{}
	c.observe("A", signalInputs{}, st, t0)
	c.observe("B", signalInputs{}, st, t0.Add(time.Second))
	c.observe("C", signalInputs{}, st, t0.Add(2*time.Second))
	views := c.list()
	require.Len(t, views, 2)
	assert.Equal(t, "B", views[0].Symbol)
	assert.Equal(t, "C", views[1].Symbol)
}
