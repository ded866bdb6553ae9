package domain

// Side is the direction of a signal, trigger, or position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Sign returns +1 for long and -1 for short.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideShort {
		return SideLong
	}
	return SideShort
}

// DirectionMode selects which sides a bot may trade.
type DirectionMode string

const (
	DirectionLong  DirectionMode = "long"
	DirectionShort DirectionMode = "short"
	DirectionBoth  DirectionMode = "both"
)

// Sides returns the enabled sides in evaluation order (long first).
func (d DirectionMode) Sides() []Side {
	switch d {
	case DirectionLong:
		return []Side{SideLong}
	case DirectionShort:
		return []Side{SideShort}
	default:
		return []Side{SideLong, SideShort}
	}
}

// MarketSample is one committed per-second observation of a symbol.
type MarketSample struct {
	Symbol       string  `json:"symbol"`
	Second       int64   `json:"second"`
	MarkPrice    float64 `json:"mark_price"`
	OpenInterest float64 `json:"open_interest"`
}

// Ticker holds the latest merged ticker fields for a symbol.
// Zero means "never observed" for every price/size field.
type Ticker struct {
	Symbol        string  `json:"symbol"`
	MarkPrice     float64 `json:"mark_price"`
	LastPrice     float64 `json:"last_price"`
	OpenInterest  float64 `json:"open_interest"` // notional (USDT)
	Turnover24h   float64 `json:"turnover_24h"`
	High24h       float64 `json:"high_24h"`
	Low24h        float64 `json:"low_24h"`
	Change24hPct  float64 `json:"change_24h_pct"`
	UpdatedAtMs   int64   `json:"updated_at_ms"`
	OIUpdatedAtMs int64   `json:"oi_updated_at_ms"`
}

// Volatility24hPct is the 24h high/low range in percent. When high/low is
// degenerate it falls back to the absolute 24h change.
func (t Ticker) Volatility24hPct() float64 {
	if t.High24h > 0 && t.Low24h > 0 && t.High24h > t.Low24h {
		return (t.High24h/t.Low24h - 1) * 100
	}
	if t.Change24hPct < 0 {
		return -t.Change24hPct
	}
	return t.Change24hPct
}
