package market

import (
	"slices"
	"sort"
)

// SelectionPolicy is the aggregated subscription shape requested by all
// running instances. Desired topics are a pure function of it.
type SelectionPolicy struct {
	Cap         int      `json:"cap"`
	TurnoverMin float64  `json:"turnover_min"`
	VolMin      float64  `json:"vol_min"`
	Intervals   []string `json:"intervals"`
	Pinned      []string `json:"pinned"`
	// Selections keeps each scanning instance's own thresholds so stricter
	// instances still get their top symbols subscribed.
	Selections []Selection `json:"selections"`
}

// Selection is one distinct (thresholds, cap) universe scan.
type Selection struct {
	Cap         int     `json:"cap"`
	TurnoverMin float64 `json:"turnover_min"`
	VolMin      float64 `json:"vol_min"`
}

// Requirement is one instance's contribution to the policy.
type Requirement struct {
	Cap         int
	TurnoverMin float64
	VolMin      float64
	Interval    string
	Pinned      []string
	// Scan is set when the instance trades the eligible universe rather
	// than a single symbol.
	Scan bool
}

// AggregatePolicy folds requirements: cap is the max, thresholds the min,
// intervals and pinned symbols the union.
func AggregatePolicy(reqs []Requirement) SelectionPolicy {
	var p SelectionPolicy
	intervals := make(map[string]struct{})
	pinned := make(map[string]struct{})
	scans := make(map[[2]float64]int)
	for i, r := range reqs {
		if r.Scan {
			key := [2]float64{r.TurnoverMin, r.VolMin}
			if r.Cap > scans[key] {
				scans[key] = r.Cap
			}
		}
		if r.Cap > p.Cap {
			p.Cap = r.Cap
		}
		if i == 0 || r.TurnoverMin < p.TurnoverMin {
			p.TurnoverMin = r.TurnoverMin
		}
		if i == 0 || r.VolMin < p.VolMin {
			p.VolMin = r.VolMin
		}
		if r.Interval != "" {
			intervals[r.Interval] = struct{}{}
		}
		for _, sym := range r.Pinned {
			if sym != "" {
				pinned[sym] = struct{}{}
			}
		}
	}
	p.Intervals = sortedKeys(intervals)
	p.Pinned = sortedKeys(pinned)
	p.Selections = make([]Selection, 0, len(scans))
	for k, c := range scans {
		if c > 0 {
			p.Selections = append(p.Selections, Selection{Cap: c, TurnoverMin: k[0], VolMin: k[1]})
		}
	}
	sort.Slice(p.Selections, func(i, j int) bool {
		a, b := p.Selections[i], p.Selections[j]
		if a.TurnoverMin != b.TurnoverMin {
			return a.TurnoverMin < b.TurnoverMin
		}
		return a.VolMin < b.VolMin
	})
	return p
}

func selectionsEqual(a, b []Selection) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PolicyEqual reports whether two policies imply the same subscriptions.
func PolicyEqual(a, b SelectionPolicy) bool {
	return a.Cap == b.Cap &&
		a.TurnoverMin == b.TurnoverMin &&
		a.VolMin == b.VolMin &&
		slices.Equal(a.Intervals, b.Intervals) &&
		slices.Equal(a.Pinned, b.Pinned) &&
		selectionsEqual(a.Selections, b.Selections)
}

// DesiredTopics computes ticker and kline topics for the given symbols.
func DesiredTopics(symbols []string, intervals []string) map[string]struct{} {
	topics := make(map[string]struct{}, len(symbols)*(1+len(intervals)))
	for _, s := range symbols {
		topics[TickerTopic(s)] = struct{}{}
		for _, iv := range intervals {
			topics[KlineTopic(iv, s)] = struct{}{}
		}
	}
	return topics
}

// TickerTopic is the public ticker topic for a symbol.
func TickerTopic(symbol string) string { return "tickers." + symbol }

// KlineTopic is the public kline topic for (interval, symbol).
func KlineTopic(interval, symbol string) string { return "kline." + interval + "." + symbol }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// diffTopics returns topics to add and to remove.
func diffTopics(desired, current map[string]struct{}) (add, remove []string) {
	for t := range desired {
		if _, ok := current[t]; !ok {
			add = append(add, t)
		}
	}
	for t := range current {
		if _, ok := desired[t]; !ok {
			remove = append(remove, t)
		}
	}
	sort.Strings(add)
	sort.Strings(remove)
	return add, remove
}

func chunk(topics []string, size int) [][]string {
	if size <= 0 {
		size = len(topics)
	}
	var out [][]string
	for len(topics) > 0 {
		n := size
		if n > len(topics) {
			n = len(topics)
		}
		out = append(out, topics[:n])
		topics = topics[n:]
	}
	return out
}
