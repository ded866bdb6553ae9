package market

import "momentum_go/internal/domain"

type slot struct {
	second int64
	mark   float64
	oi     float64
	used   bool
}

// SampleHistory is a fixed-capacity circular buffer of per-second samples
// addressed by second mod capacity. Exact-second lookups stay correct across
// wraparound because every slot remembers its own second and anything older
// than the oldest-valid watermark is rejected.
type SampleHistory struct {
	symbol string
	slots  []slot
	newest int64
	oldest int64
	count  int
}

// NewSampleHistory creates a history holding at most capacity seconds.
func NewSampleHistory(symbol string, capacity int) *SampleHistory {
	if capacity < 2 {
		capacity = 2
	}
	return &SampleHistory{
		symbol: symbol,
		slots:  make([]slot, capacity),
	}
}

func (h *SampleHistory) index(second int64) int {
	n := int64(len(h.slots))
	return int(((second % n) + n) % n)
}

// Append stores a sample. Seconds must be strictly increasing; a sample at or
// before the newest second is rejected and false is returned.
func (h *SampleHistory) Append(second int64, mark, oi float64) bool {
	if h.count > 0 && second <= h.newest {
		return false
	}
	capacity := int64(len(h.slots))
	if h.count == 0 {
		h.oldest = second
	}
	if floor := second - capacity + 1; h.oldest < floor {
		h.expire(floor)
	}
	h.slots[h.index(second)] = slot{second: second, mark: mark, oi: oi, used: true}
	h.newest = second
	h.count++
	return true
}

// expire advances the oldest-valid watermark and drops the samples it passes.
func (h *SampleHistory) expire(floor int64) {
	if floor-h.oldest >= int64(len(h.slots)) {
		h.count = 0
	} else {
		for s := h.oldest; s < floor; s++ {
			if sl := h.slots[h.index(s)]; sl.used && sl.second == s {
				h.count--
			}
		}
	}
	h.oldest = floor
}

// At returns the sample recorded at exactly second.
func (h *SampleHistory) At(second int64) (domain.MarketSample, bool) {
	if h.count == 0 || second < h.oldest || second > h.newest {
		return domain.MarketSample{}, false
	}
	s := h.slots[h.index(second)]
	if !s.used || s.second != second {
		return domain.MarketSample{}, false
	}
	return domain.MarketSample{Symbol: h.symbol, Second: s.second, MarkPrice: s.mark, OpenInterest: s.oi}, true
}

// Len returns the number of retained samples.
func (h *SampleHistory) Len() int { return h.count }

// TrendOK reports whether the last k one-second returns ending at the newest
// sample all move strictly toward side. Every second in the run must exist.
func (h *SampleHistory) TrendOK(k int, side domain.Side) bool {
	if k <= 0 {
		return true
	}
	if h.count < k+1 {
		return false
	}
	cur, ok := h.At(h.newest)
	if !ok {
		return false
	}
	for i := 1; i <= k; i++ {
		prev, ok := h.At(h.newest - int64(i))
		if !ok || prev.MarkPrice <= 0 {
			return false
		}
		ret := cur.MarkPrice - prev.MarkPrice
		if side == domain.SideShort {
			ret = -ret
		}
		if ret <= 0 {
			return false
		}
		cur = prev
	}
	return true
}
