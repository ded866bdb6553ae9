package market

import "testing"

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{7}, 7},
		{"odd", []float64{3000, 1000, 2000}, 2000},
		{"even", []float64{4, 1, 3, 2}, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := median(tt.values); got != tt.want {
				t.Errorf("median(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func TestTurnoverWindow_RollForward(t *testing.T) {
	w := newTurnoverWindow(3)
	w.update(60_000, 500)
	if g := w.gate(); g.Ready {
		t.Fatalf("gate should not be ready without a closed candle: %+v", g)
	}

	w.update(60_000, 1000) // still-open candle is overwritten
	w.update(120_000, 10)  // closes 1000
	g := w.gate()
	if !g.Ready || g.PrevTurnoverUSDT != 1000 || g.CurTurnoverUSDT != 10 {
		t.Fatalf("unexpected gate after roll: %+v", g)
	}

	w.update(60_000, 99999) // older candle is ignored
	if g := w.gate(); g.CurTurnoverUSDT != 10 || g.CandleStartMs != 120_000 {
		t.Fatalf("older candle must not move the window: %+v", g)
	}
}

func TestTurnoverWindow_BoundedHistory(t *testing.T) {
	w := newTurnoverWindow(3)
	start := int64(0)
	for _, v := range []float64{9999, 1000, 2000, 3000} {
		start += 60_000
		w.update(start, v)
	}
	start += 60_000
	w.update(start, 3100)

	if len(w.history) != 3 {
		t.Fatalf("history len = %d, want 3", len(w.history))
	}
	g := w.gate()
	if g.MedianTurnoverUSDT != 2000 {
		t.Errorf("median = %v, want 2000", g.MedianTurnoverUSDT)
	}
	if g.PrevTurnoverUSDT != 3000 {
		t.Errorf("prev = %v, want 3000", g.PrevTurnoverUSDT)
	}
}

func TestTurnoverGate_SpikeScenario(t *testing.T) {
	g := TurnoverGate{
		PrevTurnoverUSDT:   3000,
		CurTurnoverUSDT:    3100,
		MedianTurnoverUSDT: 2000,
		CandleStartMs:      1,
		Ready:              true,
	}
	if b := g.Baseline(100); b != 3000 {
		t.Errorf("Baseline = %v, want 3000", b)
	}
	if g.SpikeOK(50, 100) {
		t.Error("3100 < 4500 must fail")
	}
	g.CurTurnoverUSDT = 4500
	if !g.SpikeOK(50, 100) {
		t.Error("4500 >= 4500 must pass")
	}
	if !g.SpikeOK(50, 100) || g.SpikeOK(50, 5000) {
		t.Error("floor above prev/median must raise the baseline")
	}
}
