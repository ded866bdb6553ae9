package bybit

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"momentum_go/internal/domain"
	"momentum_go/internal/event"
)

const maxInstrumentPages = 50

// FetchInstruments pages through linear instruments and keeps trading
// USDT-settled perpetuals.
func (c *Client) FetchInstruments(ctx context.Context) ([]domain.Instrument, error) {
	var out []domain.Instrument
	cursor := ""
	for page := 0; page < maxInstrumentPages; page++ {
		q := url.Values{}
		q.Set("category", categoryLinear)
		q.Set("limit", "1000")
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var res instrumentsResult
		if err := c.get(ctx, c.limiters.Market, "/v5/market/instruments-info", q, false, &res); err != nil {
			return nil, err
		}
		for _, raw := range res.List {
			if inst, ok := parseInstrument(raw); ok {
				out = append(out, inst)
			}
		}
		if res.NextPageCursor == "" || res.NextPageCursor == cursor {
			break
		}
		cursor = res.NextPageCursor
	}
	slog.Debug("Instruments fetched", slog.Int("count", len(out)))
	return out, nil
}

func parseInstrument(raw instrumentRaw) (domain.Instrument, bool) {
	if raw.Symbol == "" || raw.Status != "Trading" || raw.ContractType != "LinearPerpetual" {
		return domain.Instrument{}, false
	}
	if raw.SettleCoin != "USDT" && raw.QuoteCoin != "USDT" {
		return domain.Instrument{}, false
	}
	tick, err := decimal.NewFromString(raw.PriceFilter.TickSize)
	if err != nil || !tick.IsPositive() {
		return domain.Instrument{}, false
	}
	return domain.Instrument{
		Symbol:      strings.ToUpper(raw.Symbol),
		TickSize:    tick,
		QtyStep:     decimalOrZero(raw.LotSizeFilter.QtyStep),
		MinQty:      decimalOrZero(raw.LotSizeFilter.MinOrderQty),
		MaxQty:      decimalOrZero(raw.LotSizeFilter.MaxOrderQty),
		MinNotional: decimalOrZero(raw.LotSizeFilter.MinNotionalValue),
	}, true
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// FetchTickers returns a 24h snapshot of every linear ticker.
func (c *Client) FetchTickers(ctx context.Context) ([]event.TickerUpdate, error) {
	q := url.Values{}
	q.Set("category", categoryLinear)

	var res tickersResult
	if err := c.get(ctx, c.limiters.Market, "/v5/market/tickers", q, false, &res); err != nil {
		return nil, err
	}
	ts := c.now().UnixMilli()
	out := make([]event.TickerUpdate, 0, len(res.List))
	for _, raw := range res.List {
		if u, ok := tickerFromRaw(raw, "", ts); ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// tickerFromRaw converts a ticker payload, keeping only the fields present.
// OI is taken as notional: openInterestValue, or openInterest*markPrice when
// both arrive in the same message.
func tickerFromRaw(raw tickerRaw, symbol string, tsMs int64) (event.TickerUpdate, bool) {
	if symbol == "" {
		symbol = raw.Symbol
	}
	if symbol == "" {
		return event.TickerUpdate{}, false
	}
	u := event.TickerUpdate{
		BaseEvent:   event.BaseEvent{Symbol: strings.ToUpper(symbol), TsMs: tsMs},
		MarkPrice:   parsePositive(raw.MarkPrice),
		LastPrice:   parsePositive(raw.LastPrice),
		Turnover24h: parsePositive(raw.Turnover24h),
		High24h:     parsePositive(raw.HighPrice24h),
		Low24h:      parsePositive(raw.LowPrice24h),
	}
	if v := parsePositive(raw.OpenInterestValue); v > 0 {
		u.OpenInterest = v
	} else if oi := parsePositive(raw.OpenInterest); oi > 0 && u.MarkPrice > 0 {
		u.OpenInterest = oi * u.MarkPrice
	}
	if pct, ok := parseNumber(raw.Price24hPcnt); ok {
		u.Change24hPct = pct * 100
		u.HasChange = true
	}
	return u, true
}
