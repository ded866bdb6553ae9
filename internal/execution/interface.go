package execution

import (
	"context"

	"momentum_go/internal/domain"
)

// OpenRequest asks the venue to open a position at market.
type OpenRequest struct {
	Instrument domain.Instrument
	Side       domain.Side
	Qty        float64
	Leverage   float64
	SLPrice    float64
	PriceHint  float64
}

// CloseRequest asks the venue to flatten a position (reduce-only).
type CloseRequest struct {
	Instrument domain.Instrument
	Side       domain.Side
	Qty        float64
	PriceHint  float64
}

// Fill is the venue-reported result of an open/close. AvgPrice is zero when
// the venue did not report one.
type Fill struct {
	OrderID  string
	AvgPrice float64
	Qty      float64
}

// Executor is the trade-execution capability used by instances.
// Any rejection aborts the attempt without partial state.
type Executor interface {
	OpenPosition(ctx context.Context, req OpenRequest) (Fill, error)
	ClosePosition(ctx context.Context, req CloseRequest) (Fill, error)
	EnsureHedgeMode(ctx context.Context) error
	EnsureIsolatedPreflight(ctx context.Context, symbol string, leverage float64) error
}
