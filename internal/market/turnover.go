package market

import "sort"

// TurnoverGate is the read view of one (symbol, interval) turnover window.
type TurnoverGate struct {
	PrevTurnoverUSDT   float64 `json:"prev_turnover_usdt"`
	CurTurnoverUSDT    float64 `json:"cur_turnover_usdt"`
	MedianTurnoverUSDT float64 `json:"median_turnover_usdt"`
	CandleStartMs      int64   `json:"candle_start_ms"`
	Ready              bool    `json:"ready"`
}

// turnoverWindow tracks candle-aligned turnover for one (symbol, interval).
// It only moves forward in time; updates for older candles are ignored.
type turnoverWindow struct {
	prev       float64
	cur        float64
	curStartMs int64
	history    []float64
	capacity   int
	median     float64
}

func newTurnoverWindow(capacity int) *turnoverWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &turnoverWindow{capacity: capacity, history: make([]float64, 0, capacity)}
}

// update applies a kline update. A new candle start closes the current candle
// into history; the same start overwrites the still-open candle's turnover.
func (w *turnoverWindow) update(startMs int64, turnover float64) {
	switch {
	case w.curStartMs == 0:
		w.curStartMs = startMs
		w.cur = turnover
	case startMs > w.curStartMs:
		closed := w.cur
		if len(w.history) == w.capacity {
			copy(w.history, w.history[1:])
			w.history = w.history[:len(w.history)-1]
		}
		w.history = append(w.history, closed)
		w.median = median(w.history)
		w.prev = closed
		w.curStartMs = startMs
		w.cur = turnover
	case startMs == w.curStartMs:
		w.cur = turnover
	}
}

func (w *turnoverWindow) gate() TurnoverGate {
	return TurnoverGate{
		PrevTurnoverUSDT:   w.prev,
		CurTurnoverUSDT:    w.cur,
		MedianTurnoverUSDT: w.median,
		CandleStartMs:      w.curStartMs,
		Ready:              w.prev > 0 && w.curStartMs > 0,
	}
}

// median returns the standard median; even counts average the two middles.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Baseline returns max(prev, median, floor).
func (g TurnoverGate) Baseline(floor float64) float64 {
	b := g.PrevTurnoverUSDT
	if g.MedianTurnoverUSDT > b {
		b = g.MedianTurnoverUSDT
	}
	if floor > b {
		b = floor
	}
	return b
}

// SpikeOK reports whether the current candle turnover reaches
// baseline * (1 + spikePct/100).
func (g TurnoverGate) SpikeOK(spikePct, floor float64) bool {
	if !g.Ready {
		return false
	}
	return g.CurTurnoverUSDT >= g.Baseline(floor)*(1+spikePct/100)
}
