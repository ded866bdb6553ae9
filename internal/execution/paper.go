package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"momentum_go/internal/domain"
)

// PaperFill is a simulated fill kept for inspection.
type PaperFill struct {
	OrderID  string
	Symbol   string
	Side     domain.Side
	Reduce   bool
	Price    float64
	Qty      float64
	TsUnixMs int64
}

// PaperExecution fills every request immediately at its price hint.
type PaperExecution struct {
	mu    sync.Mutex
	fills []PaperFill
}

// NewPaperExecution creates a paper executor.
func NewPaperExecution() *PaperExecution {
	return &PaperExecution{fills: make([]PaperFill, 0)}
}

func (p *PaperExecution) OpenPosition(ctx context.Context, req OpenRequest) (Fill, error) {
	return p.fill(req.Instrument.Symbol, req.Side, false, req.PriceHint, req.Qty)
}

func (p *PaperExecution) ClosePosition(ctx context.Context, req CloseRequest) (Fill, error) {
	return p.fill(req.Instrument.Symbol, req.Side, true, req.PriceHint, req.Qty)
}

func (p *PaperExecution) EnsureHedgeMode(ctx context.Context) error { return nil }

func (p *PaperExecution) EnsureIsolatedPreflight(ctx context.Context, symbol string, leverage float64) error {
	return nil
}

func (p *PaperExecution) fill(symbol string, side domain.Side, reduce bool, price, qty float64) (Fill, error) {
	if price <= 0 || qty <= 0 {
		return Fill{}, fmt.Errorf("paper fill %s: invalid price %v or qty %v", symbol, price, qty)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	f := PaperFill{
		OrderID:  uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Reduce:   reduce,
		Price:    price,
		Qty:      qty,
		TsUnixMs: time.Now().UnixMilli(),
	}
	p.fills = append(p.fills, f)

	slog.Debug("PAPER EXECUTION: Filled",
		slog.String("id", f.OrderID),
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.Bool("reduce", reduce),
		slog.Float64("price", price),
		slog.Float64("qty", qty))

	return Fill{OrderID: f.OrderID, AvgPrice: price, Qty: qty}, nil
}

// GetFills returns all simulated fills.
func (p *PaperExecution) GetFills() []PaperFill {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]PaperFill, len(p.fills))
	copy(result, p.fills)
	return result
}
