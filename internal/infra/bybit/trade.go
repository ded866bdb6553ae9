package bybit

import (
	"context"
	"fmt"
	"net/url"
)

// SwitchHedgeMode puts all USDT linear positions in both-side mode.
func (c *Client) SwitchHedgeMode(ctx context.Context) error {
	body := map[string]any{
		"category": categoryLinear,
		"coin":     "USDT",
		"mode":     3,
	}
	err := c.post(ctx, c.limiters.Account, "/v5/position/switch-mode", body, nil)
	if IsNotModified(err) {
		return nil
	}
	return err
}

// SwitchIsolated sets isolated margin with the given leverage on both sides.
func (c *Client) SwitchIsolated(ctx context.Context, symbol string, leverage float64) error {
	lev := formatLeverage(leverage)
	body := map[string]any{
		"category":     categoryLinear,
		"symbol":       symbol,
		"tradeMode":    1,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}
	err := c.post(ctx, c.limiters.Account, "/v5/position/switch-isolated", body, nil)
	if IsNotModified(err) {
		return nil
	}
	return err
}

// SetLeverage sets buy and sell leverage for symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	lev := formatLeverage(leverage)
	body := map[string]any{
		"category":     categoryLinear,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}
	err := c.post(ctx, c.limiters.Account, "/v5/position/set-leverage", body, nil)
	if IsNotModified(err) {
		return nil
	}
	return err
}

// PlaceOrder submits a market order and returns its order id.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	body := orderCreateBody{
		Category:    categoryLinear,
		Symbol:      req.Symbol,
		Side:        req.Side,
		OrderType:   "Market",
		Qty:         req.Qty,
		PositionIdx: req.PositionIdx,
		ReduceOnly:  req.ReduceOnly,
		StopLoss:    req.StopLoss,
		OrderLinkID: req.OrderLinkID,
	}
	if body.StopLoss != "" {
		body.SLTriggerBy = "MarkPrice"
	}

	var res orderCreateResult
	if err := c.post(ctx, c.limiters.Order, "/v5/order/create", body, &res); err != nil {
		return "", err
	}
	if res.OrderID == "" {
		return "", fmt.Errorf("bybit /v5/order/create: empty order id")
	}
	return res.OrderID, nil
}

// OrderAvgPrice reads back the average fill price. Zero means not reported.
func (c *Client) OrderAvgPrice(ctx context.Context, symbol, orderID string) (float64, error) {
	q := url.Values{}
	q.Set("category", categoryLinear)
	q.Set("symbol", symbol)
	q.Set("orderId", orderID)

	var res orderListResult
	if err := c.get(ctx, c.limiters.Order, "/v5/order/realtime", q, true, &res); err != nil {
		return 0, err
	}
	for _, o := range res.List {
		if o.OrderID == orderID {
			return parsePositive(o.AvgPrice), nil
		}
	}
	return 0, nil
}
