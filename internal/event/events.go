package event

// Type defines the type of inbound stream event.
type Type uint16

const (
	EvTicker Type = iota + 1
	EvKline
)

// Event is the interface for everything staged on the market inbox.
type Event interface {
	GetType() Type
	GetSymbol() string
	GetTsMs() int64
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Symbol string `json:"symbol"`
	TsMs   int64  `json:"ts"`
}

func (e BaseEvent) GetSymbol() string { return e.Symbol }
func (e BaseEvent) GetTsMs() int64    { return e.TsMs }

// TickerUpdate carries only the fields present in the upstream message.
// A zero price/size field means "absent"; HasChange guards Change24hPct,
// which may legitimately be zero or negative. Seed marks REST snapshots that
// only refresh 24h stats and never produce a sample.
type TickerUpdate struct {
	BaseEvent
	MarkPrice    float64 `json:"mark_price,omitempty"`
	LastPrice    float64 `json:"last_price,omitempty"`
	OpenInterest float64 `json:"open_interest,omitempty"`
	Turnover24h  float64 `json:"turnover_24h,omitempty"`
	High24h      float64 `json:"high_24h,omitempty"`
	Low24h       float64 `json:"low_24h,omitempty"`
	Change24hPct float64 `json:"change_24h_pct,omitempty"`
	HasChange    bool    `json:"has_change,omitempty"`
	Seed         bool    `json:"seed,omitempty"`
}

func (e TickerUpdate) GetType() Type { return EvTicker }

// KlineUpdate is one candle update for (symbol, interval).
type KlineUpdate struct {
	BaseEvent
	Interval      string  `json:"interval"`
	CandleStartMs int64   `json:"start"`
	Turnover      float64 `json:"turnover"`
	Confirmed     bool    `json:"confirm"`
}

func (e KlineUpdate) GetType() Type { return EvKline }
