package instance

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"momentum_go/internal/domain"
	"momentum_go/internal/execution"
)

type resultKind int

const (
	resultOpen resultKind = iota
	resultClose
)

// result is a finished live execution handed back to the tick loop.
type result struct {
	kind    resultKind
	symbol  string
	attempt uint64
	fill    execution.Fill
	err     error
	reason  domain.Reason
	level   float64
	qty     float64
}

// post delivers r unless the instance has been stopped.
func (in *Instance) post(r result) {
	select {
	case <-in.done:
		return
	default:
	}
	select {
	case in.results <- r:
	case <-in.done:
	}
}

// applyResults drains finished live executions. Results for a different
// attempt than the symbol's current one are dropped.
func (in *Instance) applyResults(now time.Time) {
	for {
		select {
		case r := <-in.results:
			st, ok := in.states[r.symbol]
			if !ok || st.attempt != r.attempt {
				continue
			}
			switch r.kind {
			case resultOpen:
				in.finishOpen(now, r.symbol, st, r.qty, r.fill, r.err)
			case resultClose:
				in.finishClose(now, r.symbol, st, r.reason, r.level, r.fill, r.err)
			}
		default:
			return
		}
	}
}

// checkCrossing fires the pending trigger when last price crossed it.
func (in *Instance) checkCrossing(now time.Time, sym string, st *symbolState, prev, cur float64) {
	p := st.pending
	if p == nil {
		st.phase = PhaseIdle
		return
	}
	if !crossed(prev, cur, p.TriggerPrice) {
		return
	}
	in.open(now, sym, st)
}

func (in *Instance) open(now time.Time, sym string, st *symbolState) {
	p := st.pending
	inst, ok := in.market.Instrument(sym)
	if !ok {
		inst = domain.Instrument{Symbol: sym}
	}
	qty := inst.RoundQty(in.cfg.MarginUSDT * in.cfg.Leverage / p.TriggerPrice)
	if qty <= 0 {
		in.abortEntry(now, sym, st, "qty rounds to zero")
		return
	}
	_, sl := ExitLevels(p.Side, p.TriggerPrice, in.cfg.Leverage, in.cfg.TPROIPct, in.cfg.SLROIPct)
	req := execution.OpenRequest{
		Instrument: inst,
		Side:       p.Side,
		Qty:        qty,
		Leverage:   in.cfg.Leverage,
		SLPrice:    inst.RoundPrice(sl),
		PriceHint:  p.TriggerPrice,
	}

	if !in.async {
		fill, err := in.exec.OpenPosition(in.ctx(), req)
		in.finishOpen(now, sym, st, qty, fill, err)
		return
	}

	st.phase = PhaseOpening
	st.attempt++
	attempt := st.attempt
	in.logf(now.UnixMilli(), slog.LevelInfo, "%s %s entry sent at trigger %.8g qty %.8g", sym, p.Side, p.TriggerPrice, qty)
	go func() {
		fill, err := in.exec.OpenPosition(in.ctx(), req)
		in.post(result{kind: resultOpen, symbol: sym, attempt: attempt, fill: fill, err: err, qty: qty})
	}()
}

// finishOpen turns a fill into a position or abandons the entry.
func (in *Instance) finishOpen(now time.Time, sym string, st *symbolState, qty float64, fill execution.Fill, err error) {
	p := st.pending
	if p == nil {
		st.phase = PhaseIdle
		return
	}
	if err != nil {
		in.abortEntry(now, sym, st, err.Error())
		return
	}

	actual := fill.AvgPrice
	if actual <= 0 {
		actual = p.TriggerPrice
	}
	if fill.Qty > 0 {
		qty = fill.Qty
	}
	tp, sl := ExitLevels(p.Side, p.TriggerPrice, in.cfg.Leverage, in.cfg.TPROIPct, in.cfg.SLROIPct)
	st.position = &Position{
		Side:             p.Side,
		TriggerPrice:     p.TriggerPrice,
		EntryPrice:       p.TriggerPrice,
		ActualEntryPrice: actual,
		Qty:              qty,
		TPPrice:          tp,
		SLPrice:          sl,
		EntryFee:         actual * qty * in.cfg.TakerFeeRate,
		OpenedAtMs:       now.UnixMilli(),
	}
	st.pending = nil
	st.phase = PhaseInPosition
	in.stats.Opened++

	in.logf(now.UnixMilli(), slog.LevelInfo, "%s %s opened at %.8g qty %.8g tp %.8g sl %.8g",
		sym, p.Side, actual, qty, tp, sl)
}

func (in *Instance) abortEntry(now time.Time, sym string, st *symbolState, why string) {
	side := domain.Side("")
	if st.pending != nil {
		side = st.pending.Side
	}
	st.pending = nil
	st.phase = PhaseIdle
	st.resetHolds()
	in.stats.FailedEntries++
	in.logf(now.UnixMilli(), slog.LevelWarn, "%s %s entry aborted: %s", sym, side, why)
}

// checkExit closes the position when mark price reaches TP or SL.
func (in *Instance) checkExit(now time.Time, sym string, st *symbolState, mark float64) {
	pos := st.position
	if pos == nil {
		st.phase = PhaseIdle
		return
	}

	var reason domain.Reason
	var level float64
	long := pos.Side == domain.SideLong
	switch {
	case (long && mark >= pos.TPPrice) || (!long && mark <= pos.TPPrice):
		reason, level = domain.ExitTakeProfit, pos.TPPrice
	case (long && mark <= pos.SLPrice) || (!long && mark >= pos.SLPrice):
		reason, level = domain.ExitStopLoss, pos.SLPrice
	default:
		return
	}

	inst, ok := in.market.Instrument(sym)
	if !ok {
		inst = domain.Instrument{Symbol: sym}
	}
	req := execution.CloseRequest{Instrument: inst, Side: pos.Side, Qty: pos.Qty, PriceHint: level}

	if !in.async {
		fill, err := in.exec.ClosePosition(in.ctx(), req)
		in.finishClose(now, sym, st, reason, level, fill, err)
		return
	}

	st.phase = PhaseClosing
	st.attempt++
	attempt := st.attempt
	in.logf(now.UnixMilli(), slog.LevelInfo, "%s %s exit sent (%s at mark %.8g)", sym, pos.Side, reason, mark)
	go func() {
		fill, err := in.exec.ClosePosition(in.ctx(), req)
		in.post(result{kind: resultClose, symbol: sym, attempt: attempt, fill: fill, err: err, reason: reason, level: level})
	}()
}

// finishClose books the trade and starts the cooldown. A failed exit leaves
// the position open so the next tick retries.
func (in *Instance) finishClose(now time.Time, sym string, st *symbolState, reason domain.Reason, level float64, fill execution.Fill, err error) {
	pos := st.position
	if pos == nil {
		st.phase = PhaseIdle
		return
	}
	if err != nil {
		st.phase = PhaseInPosition
		in.stats.FailedExits++
		in.logf(now.UnixMilli(), slog.LevelWarn, "%s %s exit failed: %v", sym, pos.Side, err)
		return
	}

	exit := fill.AvgPrice
	if exit <= 0 {
		exit = level
	}
	pnl := ComputePnL(pos.Side, pos.ActualEntryPrice, exit, pos.Qty, in.cfg.TakerFeeRate, in.cfg.MakerFeeRate)
	in.stats.record(pnl)

	in.appendTrade(domain.TradeRecord{
		Symbol:           sym,
		Side:             pos.Side,
		Reason:           reason,
		TriggerPrice:     pos.TriggerPrice,
		EntryPrice:       pos.EntryPrice,
		ActualEntryPrice: pos.ActualEntryPrice,
		ExitPrice:        exit,
		Qty:              pos.Qty,
		EntryFee:         pnl.EntryFee,
		ExitFee:          pnl.ExitFee,
		GrossPnL:         pnl.Gross,
		NetPnL:           pnl.Net,
		OpenedAtMs:       pos.OpenedAtMs,
		ClosedAtMs:       now.UnixMilli(),
	})

	st.position = nil
	st.phase = PhaseCooldown
	st.cooldownUntil = now.Add(time.Duration(in.cfg.CooldownMinutes * float64(time.Minute)))
	in.logf(now.UnixMilli(), slog.LevelInfo, "%s %s closed %s at %.8g net %.4f USDT", sym, pos.Side, reason, exit, pnl.Net)
}

func (in *Instance) appendTrade(rec domain.TradeRecord) {
	rec.ID = uuid.NewString()
	rec.InstanceID = in.id
	rec.Mode = in.cfg.Mode
	if in.sink != nil {
		in.sink.AppendTrade(rec)
	}
}
