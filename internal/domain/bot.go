package domain

import (
	"regexp"
	"strings"
)

// Mode is the execution mode of a bot instance.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// PriceSource selects which price a trigger is derived from.
type PriceSource string

const (
	PriceSourceMark PriceSource = "mark"
	PriceSourceLast PriceSource = "last"
)

const (
	MaxWindowMinutes = 15
	MaxUniverseCap   = 500

	DefaultTakerFeeRate = 0.00055
	DefaultMakerFeeRate = 0.0002
)

var pinnedSymbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,24}USDT$`)

// BotConfig is immutable once an instance is created from it.
// Percent fields are in percent units (0.2 means 0.2%).
type BotConfig struct {
	Name                 string        `yaml:"name" json:"name"`
	Mode                 Mode          `yaml:"mode" json:"mode"`
	Direction            DirectionMode `yaml:"direction" json:"direction"`
	WindowMinutes        int           `yaml:"window_minutes" json:"window_minutes"`
	PriceThresholdPct    float64       `yaml:"price_threshold_pct" json:"price_threshold_pct"`
	OIThresholdPct       float64       `yaml:"oi_threshold_pct" json:"oi_threshold_pct"`
	TurnoverSpikePct     float64       `yaml:"turnover_spike_pct" json:"turnover_spike_pct"`
	TurnoverFloorUSDT    float64       `yaml:"turnover_floor_usdt" json:"turnover_floor_usdt"`
	TurnoverInterval     string        `yaml:"turnover_interval" json:"turnover_interval"`
	HoldSeconds          int           `yaml:"hold_seconds" json:"hold_seconds"`
	TrendConfirmSeconds  int           `yaml:"trend_confirm_seconds" json:"trend_confirm_seconds"`
	OIMaxAgeSec          float64       `yaml:"oi_max_age_sec" json:"oi_max_age_sec"`
	Leverage             float64       `yaml:"leverage" json:"leverage"`
	MarginUSDT           float64       `yaml:"margin_usdt" json:"margin_usdt"`
	TPROIPct             float64       `yaml:"tp_roi_pct" json:"tp_roi_pct"`
	SLROIPct             float64       `yaml:"sl_roi_pct" json:"sl_roi_pct"`
	EntryPriceSource     PriceSource   `yaml:"entry_price_source" json:"entry_price_source"`
	EntryOffsetPct       float64       `yaml:"entry_offset_pct" json:"entry_offset_pct"`
	CooldownMinutes      float64       `yaml:"cooldown_minutes" json:"cooldown_minutes"`
	Symbol               string        `yaml:"symbol" json:"symbol,omitempty"`
	MaxNewEntriesPerTick int           `yaml:"max_new_entries_per_tick" json:"max_new_entries_per_tick"`
	UniverseCap          int           `yaml:"universe_cap" json:"universe_cap"`
	TurnoverMinUSDT      float64       `yaml:"turnover_min_usdt" json:"turnover_min_usdt"`
	VolMinPct            float64       `yaml:"vol_min_pct" json:"vol_min_pct"`
	TakerFeeRate         float64       `yaml:"taker_fee_rate" json:"taker_fee_rate"`
	MakerFeeRate         float64       `yaml:"maker_fee_rate" json:"maker_fee_rate"`
}

// WithDefaults fills zero-valued optional fields.
func (c BotConfig) WithDefaults() BotConfig {
	if c.Mode == "" {
		c.Mode = ModePaper
	}
	if c.Direction == "" {
		c.Direction = DirectionBoth
	}
	if c.TurnoverInterval == "" {
		c.TurnoverInterval = "1"
	}
	if c.HoldSeconds <= 0 {
		c.HoldSeconds = 1
	}
	if c.Leverage <= 0 {
		c.Leverage = 1
	}
	if c.EntryPriceSource == "" {
		c.EntryPriceSource = PriceSourceLast
	}
	if c.MaxNewEntriesPerTick <= 0 {
		c.MaxNewEntriesPerTick = 1
	}
	if c.TakerFeeRate == 0 {
		c.TakerFeeRate = DefaultTakerFeeRate
	}
	if c.MakerFeeRate == 0 {
		c.MakerFeeRate = DefaultMakerFeeRate
	}
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	return c
}

// Validate rejects configurations an instance must never be created from.
func (c BotConfig) Validate() error {
	if c.WindowMinutes < 1 || c.WindowMinutes > MaxWindowMinutes {
		return &ConfigError{Field: "window_minutes", Reason: "must be between 1 and 15"}
	}
	if c.UniverseCap < 1 || c.UniverseCap > MaxUniverseCap {
		return &ConfigError{Field: "universe_cap", Reason: "must be between 1 and 500"}
	}
	if c.Symbol != "" && !pinnedSymbolPattern.MatchString(c.Symbol) {
		return &ConfigError{Field: "symbol", Reason: "must look like BTCUSDT"}
	}
	switch c.Mode {
	case ModePaper, ModeLive:
	default:
		return &ConfigError{Field: "mode", Reason: "must be paper or live"}
	}
	switch c.Direction {
	case DirectionLong, DirectionShort, DirectionBoth:
	default:
		return &ConfigError{Field: "direction", Reason: "must be long, short or both"}
	}
	switch c.EntryPriceSource {
	case PriceSourceMark, PriceSourceLast:
	default:
		return &ConfigError{Field: "entry_price_source", Reason: "must be mark or last"}
	}
	if c.MarginUSDT <= 0 {
		return &ConfigError{Field: "margin_usdt", Reason: "must be positive"}
	}
	if c.TPROIPct <= 0 || c.SLROIPct <= 0 {
		return &ConfigError{Field: "tp_roi_pct/sl_roi_pct", Reason: "must be positive"}
	}
	return nil
}

// WindowSeconds returns the signal window length in seconds.
func (c BotConfig) WindowSeconds() int64 {
	return int64(c.WindowMinutes) * 60
}
