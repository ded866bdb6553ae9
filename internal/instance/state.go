package instance

import (
	"time"

	"momentum_go/internal/domain"
)

// Phase is the per-symbol lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTriggerPending
	PhaseOpening // live entry in flight
	PhaseInPosition
	PhaseClosing // live exit in flight
	PhaseCooldown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseTriggerPending:
		return "TRIGGER_PENDING"
	case PhaseOpening:
		return "OPENING"
	case PhaseInPosition:
		return "IN_POSITION"
	case PhaseClosing:
		return "CLOSING"
	case PhaseCooldown:
		return "COOLDOWN"
	default:
		return "UNKNOWN"
	}
}

// PendingTrigger is an armed entry waiting for last price to cross it.
type PendingTrigger struct {
	Side         domain.Side `json:"side"`
	TriggerPrice float64     `json:"trigger_price"`
	SignalPrice  float64     `json:"signal_price"`
	CreatedAtMs  int64       `json:"created_at_ms"`
}

// Position is an open position and its exit levels.
type Position struct {
	Side             domain.Side `json:"side"`
	TriggerPrice     float64     `json:"trigger_price"`
	EntryPrice       float64     `json:"entry_price"`
	ActualEntryPrice float64     `json:"actual_entry_price"`
	Qty              float64     `json:"qty"`
	TPPrice          float64     `json:"tp_price"`
	SLPrice          float64     `json:"sl_price"`
	EntryFee         float64     `json:"entry_fee"`
	OpenedAtMs       int64       `json:"opened_at_ms"`
}

// symbolState is owned by one instance and only touched under its lock.
type symbolState struct {
	phase         Phase
	pending       *PendingTrigger
	position      *Position
	holdLong      int
	holdShort     int
	cooldownUntil time.Time
	lastPrice     float64
	// attempt tags async executions so stale results are ignored.
	attempt uint64
}

func (s *symbolState) hold(side domain.Side) *int {
	if side == domain.SideShort {
		return &s.holdShort
	}
	return &s.holdLong
}

func (s *symbolState) resetHolds() {
	s.holdLong, s.holdShort = 0, 0
}

// idle reports whether the state carries nothing worth keeping.
func (s *symbolState) idle() bool {
	return s.phase == PhaseIdle && s.holdLong == 0 && s.holdShort == 0
}

// PnL is the realized result of one closed position.
type PnL struct {
	Gross    float64
	EntryFee float64
	ExitFee  float64
	Net      float64
}

// ComputePnL charges taker on entry and maker on exit.
func ComputePnL(side domain.Side, entry, exit, qty, takerRate, makerRate float64) PnL {
	gross := (exit - entry) * qty * side.Sign()
	entryFee := entry * qty * takerRate
	exitFee := exit * qty * makerRate
	return PnL{
		Gross:    gross,
		EntryFee: entryFee,
		ExitFee:  exitFee,
		Net:      gross - entryFee - exitFee,
	}
}

// ExitLevels converts ROI targets into price levels for a leveraged entry.
func ExitLevels(side domain.Side, entry, leverage, tpROIPct, slROIPct float64) (tp, sl float64) {
	if leverage <= 0 {
		leverage = 1
	}
	tpMove := tpROIPct / leverage / 100
	slMove := slROIPct / leverage / 100
	if side == domain.SideShort {
		return entry * (1 - tpMove), entry * (1 + slMove)
	}
	return entry * (1 + tpMove), entry * (1 - slMove)
}

// crossed reports whether last price moved through trigger between ticks or
// sits exactly on it.
func crossed(prev, cur, trigger float64) bool {
	if cur == trigger {
		return true
	}
	if prev <= 0 {
		return false
	}
	return (prev < trigger && cur > trigger) || (prev > trigger && cur < trigger)
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}
