package instance

import (
	"fmt"
	"log/slog"
	"time"

	"momentum_go/internal/domain"
)

// signalInputs is what one entry evaluation saw.
type signalInputs struct {
	PriceChgPct float64
	OIChgPct    float64
	Hold        int
}

// evaluateEntry runs the per-side gates for an IDLE symbol and arms at most
// one trigger. Every failed gate resets that side's hold counter.
func (in *Instance) evaluateEntry(now time.Time, sym string, st *symbolState, snap domain.Ticker, prev domain.MarketSample) bool {
	sig := signalInputs{
		PriceChgPct: pctChange(prev.MarkPrice, snap.MarkPrice),
		OIChgPct:    pctChange(prev.OpenInterest, snap.OpenInterest),
	}
	defer func() { in.views.observe(sym, sig, st, now) }()

	for _, side := range in.cfg.Direction.Sides() {
		hold := st.hold(side)
		if !in.thresholdMet(side, sig) {
			*hold = 0
			continue
		}
		if reason, detail, ok := in.gates(sym, side); !ok {
			*hold = 0
			in.diag(now, sym, side, reason, sig, detail)
			continue
		}

		*hold++
		sig.Hold = *hold
		if *hold < in.cfg.HoldSeconds {
			in.diag(now, sym, side, domain.ReasonHoldNotMet, sig, fmt.Sprintf("%d/%d", *hold, in.cfg.HoldSeconds))
			continue
		}
		if in.arm(now, sym, st, side, snap, sig) {
			return true
		}
	}
	return false
}

func (in *Instance) thresholdMet(side domain.Side, s signalInputs) bool {
	if s.OIChgPct < in.cfg.OIThresholdPct {
		return false
	}
	if side == domain.SideShort {
		return s.PriceChgPct <= -in.cfg.PriceThresholdPct
	}
	return s.PriceChgPct >= in.cfg.PriceThresholdPct
}

// gates checks OI freshness, trend, then (long only) the turnover spike.
// A non-positive oi_max_age_sec disables the freshness gate; the turnover
// gate is disabled when both spike and floor are non-positive.
func (in *Instance) gates(sym string, side domain.Side) (domain.Reason, string, bool) {
	if max := in.cfg.OIMaxAgeSec; max > 0 {
		if age := in.market.OIAgeSec(sym); age > max {
			return domain.ReasonOIStale, fmt.Sprintf("age %.1fs > %.1fs", age, max), false
		}
	}
	if k := in.cfg.TrendConfirmSeconds; k > 0 && !in.market.TrendOK(sym, k, side) {
		return domain.ReasonTrendFail, fmt.Sprintf("%ds", k), false
	}
	if side == domain.SideLong && (in.cfg.TurnoverSpikePct > 0 || in.cfg.TurnoverFloorUSDT > 0) {
		g := in.market.TurnoverGate(sym, in.cfg.TurnoverInterval)
		if !g.SpikeOK(in.cfg.TurnoverSpikePct, in.cfg.TurnoverFloorUSDT) {
			return domain.ReasonTurnoverGateFail,
				fmt.Sprintf("cur %.0f baseline %.0f ready %t", g.CurTurnoverUSDT, g.Baseline(in.cfg.TurnoverFloorUSDT), g.Ready), false
		}
	}
	return "", "", true
}

// arm places a pending trigger offset from the signal price, rounded toward
// fill: floor for long, ceil for short.
func (in *Instance) arm(now time.Time, sym string, st *symbolState, side domain.Side, snap domain.Ticker, s signalInputs) bool {
	signal := snap.LastPrice
	if in.cfg.EntryPriceSource == domain.PriceSourceMark {
		signal = snap.MarkPrice
	}
	trigger := signal * (1 + side.Sign()*in.cfg.EntryOffsetPct/100)
	if inst, ok := in.market.Instrument(sym); ok {
		trigger = inst.RoundTrigger(trigger, side)
	}
	if trigger <= 0 {
		return false
	}

	st.pending = &PendingTrigger{
		Side:         side,
		TriggerPrice: trigger,
		SignalPrice:  signal,
		CreatedAtMs:  now.UnixMilli(),
	}
	st.phase = PhaseTriggerPending
	st.resetHolds()
	in.stats.Armed++

	in.recordSignal(now, sym, side, domain.ReasonTriggerArmed, s, fmt.Sprintf("trigger %.8g", trigger))
	in.logf(now.UnixMilli(), slog.LevelInfo, "%s %s trigger armed at %.8g (price %+.3f%%, oi %+.3f%%)",
		sym, side, trigger, s.PriceChgPct, s.OIChgPct)
	return true
}

type diagKey struct {
	symbol string
	side   domain.Side
	reason domain.Reason
}

// diag records a throttled diagnostic row.
func (in *Instance) diag(now time.Time, sym string, side domain.Side, reason domain.Reason, s signalInputs, detail string) {
	in.views.setReason(sym, side, reason, now)
	key := diagKey{sym, side, reason}
	if last, ok := in.lastDiag[key]; ok && now.Sub(last) < diagThrottle {
		return
	}
	in.lastDiag[key] = now
	in.recordSignal(now, sym, side, reason, s, detail)
}

func (in *Instance) recordSignal(now time.Time, sym string, side domain.Side, reason domain.Reason, s signalInputs, detail string) {
	if in.sink == nil {
		return
	}
	in.sink.AppendSignal(domain.SignalRow{
		InstanceID:  in.id,
		Symbol:      sym,
		Side:        side,
		Reason:      reason,
		PriceChgPct: s.PriceChgPct,
		OIChgPct:    s.OIChgPct,
		Hold:        s.Hold,
		Detail:      detail,
		AtMs:        now.UnixMilli(),
	})
}
