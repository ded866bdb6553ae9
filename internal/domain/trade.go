package domain

// Reason is a diagnostic or exit reason code.
type Reason string

// Diagnostic reasons recorded per evaluation.
const (
	ReasonNoPrevCandle     Reason = "NO_PREV_CANDLE"
	ReasonOIStale          Reason = "OI_STALE"
	ReasonTrendFail        Reason = "TREND_FAIL"
	ReasonTurnoverGateFail Reason = "TURNOVER_GATE_FAIL"
	ReasonHoldNotMet       Reason = "HOLD_NOT_MET"
	ReasonSymbolBusy       Reason = "SYMBOL_BUSY"
	ReasonTriggerArmed     Reason = "TRIGGER_ARMED"
)

// Exit and audit reasons on trade records.
const (
	ExitTakeProfit   Reason = "TP"
	ExitStopLoss     Reason = "SL"
	ExitManualCancel Reason = "MANUAL_CANCEL"
)

// TradeRecord is appended to the durable sink on every closed position and
// on every manual trigger cancellation (the latter carries no PnL).
type TradeRecord struct {
	ID               string  `json:"id"`
	InstanceID       string  `json:"instance_id"`
	Mode             Mode    `json:"mode"`
	Symbol           string  `json:"symbol"`
	Side             Side    `json:"side"`
	Reason           Reason  `json:"reason"`
	TriggerPrice     float64 `json:"trigger_price"`
	EntryPrice       float64 `json:"entry_price"`
	ActualEntryPrice float64 `json:"actual_entry_price"`
	ExitPrice        float64 `json:"exit_price"`
	Qty              float64 `json:"qty"`
	EntryFee         float64 `json:"entry_fee"`
	ExitFee          float64 `json:"exit_fee"`
	GrossPnL         float64 `json:"gross_pnl"`
	NetPnL           float64 `json:"net_pnl"`
	OpenedAtMs       int64   `json:"opened_at_ms"`
	ClosedAtMs       int64   `json:"closed_at_ms"`
}

// SignalRow is one diagnostic evaluation outcome.
type SignalRow struct {
	InstanceID  string  `json:"instance_id"`
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side,omitempty"`
	Reason      Reason  `json:"reason"`
	PriceChgPct float64 `json:"price_chg_pct"`
	OIChgPct    float64 `json:"oi_chg_pct"`
	Hold        int     `json:"hold"`
	Detail      string  `json:"detail,omitempty"`
	AtMs        int64   `json:"at_ms"`
}

// Sink is the durable append-only destination for trades and diagnostics.
type Sink interface {
	AppendTrade(rec TradeRecord)
	AppendSignal(row SignalRow)
}
