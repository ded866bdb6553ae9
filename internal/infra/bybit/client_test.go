package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum_go/internal/infra"
)

func writeEnvelope(w http.ResponseWriter, code int, msg string, result any) {
	b, _ := json.Marshal(result)
	json.NewEncoder(w).Encode(envelope{RetCode: code, RetMsg: msg, Result: b})
}

func newTestClient(t *testing.T, h http.HandlerFunc, signed bool) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	var s *Signer
	if signed {
		s = NewSigner("key", "secret", 5000)
	}
	return NewClient(srv.URL, s, infra.VenueLimiters{})
}

func TestFetchInstruments_PaginatesAndFilters(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/instruments-info", r.URL.Path)
		assert.Equal(t, "linear", r.URL.Query().Get("category"))
		calls++
		if r.URL.Query().Get("cursor") == "" {
			writeEnvelope(w, 0, "OK", map[string]any{
				"list": []map[string]any{
					{"symbol": "BTCUSDT", "contractType": "LinearPerpetual", "status": "Trading", "settleCoin": "USDT",
						"priceFilter":   map[string]string{"tickSize": "0.10"},
						"lotSizeFilter": map[string]string{"qtyStep": "0.001", "minOrderQty": "0.001", "maxOrderQty": "100", "minNotionalValue": "5"}},
					{"symbol": "BTCUSDH25", "contractType": "LinearFutures", "status": "Trading", "settleCoin": "USDT",
						"priceFilter": map[string]string{"tickSize": "0.10"}},
				},
				"nextPageCursor": "page2",
			})
			return
		}
		writeEnvelope(w, 0, "OK", map[string]any{
			"list": []map[string]any{
				{"symbol": "ETHUSDT", "contractType": "LinearPerpetual", "status": "Trading", "settleCoin": "USDT",
					"priceFilter": map[string]string{"tickSize": "0.01"}},
				{"symbol": "OLDUSDT", "contractType": "LinearPerpetual", "status": "Closed", "settleCoin": "USDT",
					"priceFilter": map[string]string{"tickSize": "0.01"}},
				{"symbol": "BADUSDT", "contractType": "LinearPerpetual", "status": "Trading", "settleCoin": "USDT",
					"priceFilter": map[string]string{"tickSize": "0"}},
			},
			"nextPageCursor": "",
		})
	}, false)

	list, err := c.FetchInstruments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, list, 2)
	assert.Equal(t, "BTCUSDT", list[0].Symbol)
	assert.Equal(t, "0.1", list[0].TickSize.String())
	assert.Equal(t, "5", list[0].MinNotional.String())
	assert.Equal(t, "ETHUSDT", list[1].Symbol)
}

func TestFetchTickers_ParsesSnapshot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "OK", map[string]any{
			"list": []map[string]string{
				{"symbol": "BTCUSDT", "lastPrice": "100.5", "markPrice": "100.4", "openInterestValue": "2500000",
					"turnover24h": "9000000", "highPrice24h": "110", "lowPrice24h": "100", "price24hPcnt": "-0.0123"},
				{"symbol": "", "lastPrice": "1"},
				{"symbol": "XUSDT", "lastPrice": "NaN", "openInterest": "10", "markPrice": "2"},
			},
		})
	}, false)

	got, err := c.FetchTickers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	btc := got[0]
	assert.Equal(t, 100.5, btc.LastPrice)
	assert.Equal(t, 2_500_000.0, btc.OpenInterest)
	assert.True(t, btc.HasChange)
	assert.InDelta(t, -1.23, btc.Change24hPct, 1e-9)

	x := got[1]
	assert.Equal(t, 0.0, x.LastPrice)
	assert.Equal(t, 20.0, x.OpenInterest)
	assert.False(t, x.HasChange)
}

func TestClient_APIErrorAndNotModified(t *testing.T) {
	var lastBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-BAPI-SIGN"))
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &lastBody)
		switch r.URL.Path {
		case "/v5/position/switch-mode":
			writeEnvelope(w, codeModeNotModified, "position mode not modified", nil)
		case "/v5/position/set-leverage":
			writeEnvelope(w, 10001, "leverage invalid", nil)
		default:
			writeEnvelope(w, 0, "OK", nil)
		}
	}, true)

	require.NoError(t, c.SwitchHedgeMode(context.Background()))
	assert.EqualValues(t, 3, lastBody["mode"])

	err := c.SetLeverage(context.Background(), "BTCUSDT", 10)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 10001, apiErr.Code)
	assert.False(t, IsNotModified(err))
	assert.Equal(t, "10", lastBody["buyLeverage"])
}

func TestClient_PlaceOrderAndAvgPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/order/create":
			var body orderCreateBody
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Market", body.OrderType)
			assert.Equal(t, 2, body.PositionIdx)
			assert.Equal(t, "101.5", body.StopLoss)
			assert.Equal(t, "MarkPrice", body.SLTriggerBy)
			writeEnvelope(w, 0, "OK", orderCreateResult{OrderID: "o-1"})
		case "/v5/order/realtime":
			assert.Equal(t, "o-1", r.URL.Query().Get("orderId"))
			writeEnvelope(w, 0, "OK", map[string]any{
				"list": []map[string]string{{"orderId": "o-1", "orderStatus": "Filled", "avgPrice": "100.02"}},
			})
		}
	}, true)

	id, err := c.PlaceOrder(context.Background(), OrderRequest{Symbol: "BTCUSDT", Side: "Sell", Qty: "0.1", PositionIdx: 2, StopLoss: "101.5"})
	require.NoError(t, err)
	assert.Equal(t, "o-1", id)

	avg, err := c.OrderAvgPrice(context.Background(), "BTCUSDT", id)
	require.NoError(t, err)
	assert.Equal(t, 100.02, avg)
}

func TestClient_SignedWithoutCredentials(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", nil, infra.VenueLimiters{})
	assert.False(t, c.CanTrade())
	assert.Error(t, c.SwitchHedgeMode(context.Background()))
}
