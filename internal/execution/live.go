package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"momentum_go/internal/domain"
	"momentum_go/internal/infra"
	"momentum_go/internal/infra/bybit"
)

// OrderClient is the slice of the exchange REST client live trading needs.
type OrderClient interface {
	SwitchHedgeMode(ctx context.Context) error
	SwitchIsolated(ctx context.Context, symbol string, leverage float64) error
	SetLeverage(ctx context.Context, symbol string, leverage float64) error
	PlaceOrder(ctx context.Context, req bybit.OrderRequest) (string, error)
	OrderAvgPrice(ctx context.Context, symbol, orderID string) (float64, error)
}

// LiveExecution routes orders to the exchange behind a circuit breaker.
// One instance is shared by every live bot on the account.
type LiveExecution struct {
	client  OrderClient
	breaker *infra.CircuitBreaker

	mu       sync.Mutex
	isolated map[string]float64 // symbol -> leverage already applied
}

// NewLiveExecution creates a live executor.
func NewLiveExecution(client OrderClient, breaker *infra.CircuitBreaker) *LiveExecution {
	if breaker == nil {
		breaker = infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("orders"))
	}
	return &LiveExecution{
		client:   client,
		breaker:  breaker,
		isolated: make(map[string]float64),
	}
}

func (e *LiveExecution) EnsureHedgeMode(ctx context.Context) error {
	return e.client.SwitchHedgeMode(ctx)
}

// EnsureIsolatedPreflight applies isolated margin and leverage once per
// (symbol, leverage).
func (e *LiveExecution) EnsureIsolatedPreflight(ctx context.Context, symbol string, leverage float64) error {
	e.mu.Lock()
	lev, done := e.isolated[symbol]
	e.mu.Unlock()
	if done && lev == leverage {
		return nil
	}

	if err := e.client.SwitchIsolated(ctx, symbol, leverage); err != nil {
		return fmt.Errorf("switch isolated: %w", err)
	}
	if err := e.client.SetLeverage(ctx, symbol, leverage); err != nil {
		return fmt.Errorf("set leverage: %w", err)
	}

	e.mu.Lock()
	e.isolated[symbol] = leverage
	e.mu.Unlock()
	return nil
}

func (e *LiveExecution) OpenPosition(ctx context.Context, req OpenRequest) (Fill, error) {
	symbol := req.Instrument.Symbol
	if err := checkOrderSize(req.Instrument, req.Qty, req.PriceHint); err != nil {
		return Fill{}, &domain.ExecutionError{Op: "open", Symbol: symbol, Err: err}
	}
	if err := e.EnsureIsolatedPreflight(ctx, symbol, req.Leverage); err != nil {
		return Fill{}, &domain.ExecutionError{Op: "open", Symbol: symbol, Err: err}
	}

	order := bybit.OrderRequest{
		Symbol:      symbol,
		Side:        orderSide(req.Side, false),
		Qty:         req.Instrument.FormatQty(req.Qty),
		PositionIdx: positionIdx(req.Side),
		OrderLinkID: uuid.NewString(),
	}
	if req.SLPrice > 0 {
		order.StopLoss = req.Instrument.FormatPrice(req.SLPrice)
	}
	return e.place(ctx, "open", order, req.Qty)
}

func (e *LiveExecution) ClosePosition(ctx context.Context, req CloseRequest) (Fill, error) {
	order := bybit.OrderRequest{
		Symbol:      req.Instrument.Symbol,
		Side:        orderSide(req.Side, true),
		Qty:         req.Instrument.FormatQty(req.Qty),
		PositionIdx: positionIdx(req.Side),
		ReduceOnly:  true,
		OrderLinkID: uuid.NewString(),
	}
	return e.place(ctx, "close", order, req.Qty)
}

func (e *LiveExecution) place(ctx context.Context, op string, order bybit.OrderRequest, qty float64) (Fill, error) {
	var orderID string
	err := e.breaker.Execute(func() error {
		id, err := e.client.PlaceOrder(ctx, order)
		orderID = id
		return err
	}, countsAgainstBreaker)
	if err != nil {
		return Fill{}, &domain.ExecutionError{Op: op, Symbol: order.Symbol, Err: err}
	}

	avg, err := e.client.OrderAvgPrice(ctx, order.Symbol, orderID)
	if err != nil {
		slog.Warn("Average price unavailable",
			slog.String("symbol", order.Symbol),
			slog.String("order_id", orderID),
			slog.Any("error", err))
		avg = 0
	}

	slog.Info("LIVE EXECUTION: Order placed",
		slog.String("op", op),
		slog.String("symbol", order.Symbol),
		slog.String("side", order.Side),
		slog.String("qty", order.Qty),
		slog.String("order_id", orderID),
		slog.Float64("avg_price", avg))

	return Fill{OrderID: orderID, AvgPrice: avg, Qty: qty}, nil
}

// countsAgainstBreaker keeps venue rejections (bad qty, notional limits)
// from opening the breaker; transport failures do.
func countsAgainstBreaker(err error) bool {
	var apiErr *bybit.APIError
	return !errors.As(err, &apiErr)
}

// checkOrderSize rejects orders the venue would refuse on size.
func checkOrderSize(inst domain.Instrument, qty, price float64) error {
	q := decimal.NewFromFloat(qty)
	if !q.IsPositive() {
		return fmt.Errorf("qty %v must be positive", qty)
	}
	if inst.MinQty.IsPositive() && q.LessThan(inst.MinQty) {
		return fmt.Errorf("qty %s below min %s", q, inst.MinQty)
	}
	if inst.MaxQty.IsPositive() && q.GreaterThan(inst.MaxQty) {
		return fmt.Errorf("qty %s above max %s", q, inst.MaxQty)
	}
	if inst.MinNotional.IsPositive() && price > 0 {
		notional := q.Mul(decimal.NewFromFloat(price))
		if notional.LessThan(inst.MinNotional) {
			return fmt.Errorf("notional %s below min %s", notional.StringFixed(4), inst.MinNotional)
		}
	}
	return nil
}

func orderSide(side domain.Side, reduce bool) string {
	buy := side == domain.SideLong
	if reduce {
		buy = !buy
	}
	if buy {
		return "Buy"
	}
	return "Sell"
}

func positionIdx(side domain.Side) int {
	if side == domain.SideShort {
		return 2
	}
	return 1
}
