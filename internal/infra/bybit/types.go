package bybit

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Return codes that mean the requested account state is already in place.
const (
	codeLeverageNotModified = 110043
	codeMarginNotModified   = 110026
	codeModeNotModified     = 110025
)

// APIError is a non-zero retCode.
type APIError struct {
	Code int
	Msg  string
	Path string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit %s: retCode=%d %s", e.Path, e.Code, e.Msg)
}

// IsNotModified reports whether err only says the setting already applies.
func IsNotModified(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case codeLeverageNotModified, codeMarginNotModified, codeModeNotModified:
		return true
	}
	return false
}

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

type instrumentsResult struct {
	Category       string          `json:"category"`
	List           []instrumentRaw `json:"list"`
	NextPageCursor string          `json:"nextPageCursor"`
}

type instrumentRaw struct {
	Symbol       string `json:"symbol"`
	ContractType string `json:"contractType"`
	Status       string `json:"status"`
	QuoteCoin    string `json:"quoteCoin"`
	SettleCoin   string `json:"settleCoin"`
	PriceFilter  struct {
		TickSize string `json:"tickSize"`
	} `json:"priceFilter"`
	LotSizeFilter struct {
		QtyStep          string `json:"qtyStep"`
		MinOrderQty      string `json:"minOrderQty"`
		MaxOrderQty      string `json:"maxOrderQty"`
		MinNotionalValue string `json:"minNotionalValue"`
	} `json:"lotSizeFilter"`
}

type tickersResult struct {
	Category string      `json:"category"`
	List     []tickerRaw `json:"list"`
}

// tickerRaw is shared by REST tickers and WS ticker snapshots/deltas; every
// field is optional in a delta.
type tickerRaw struct {
	Symbol            string `json:"symbol"`
	LastPrice         string `json:"lastPrice"`
	MarkPrice         string `json:"markPrice"`
	OpenInterest      string `json:"openInterest"`
	OpenInterestValue string `json:"openInterestValue"`
	Turnover24h       string `json:"turnover24h"`
	HighPrice24h      string `json:"highPrice24h"`
	LowPrice24h       string `json:"lowPrice24h"`
	Price24hPcnt      string `json:"price24hPcnt"`
}

type orderCreateResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

type orderListResult struct {
	List []struct {
		OrderID     string `json:"orderId"`
		OrderStatus string `json:"orderStatus"`
		AvgPrice    string `json:"avgPrice"`
		CumExecQty  string `json:"cumExecQty"`
	} `json:"list"`
}

// OrderRequest is a market order on a hedge-mode linear position.
type OrderRequest struct {
	Symbol      string
	Side        string // "Buy" or "Sell"
	Qty         string
	PositionIdx int // 1 long, 2 short
	ReduceOnly  bool
	StopLoss    string
	OrderLinkID string
}

type orderCreateBody struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	PositionIdx int    `json:"positionIdx"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
	StopLoss    string `json:"stopLoss,omitempty"`
	SLTriggerBy string `json:"slTriggerBy,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

// wsMessage covers topic pushes and op acknowledgements.
type wsMessage struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Ts      int64           `json:"ts"`
	Data    json.RawMessage `json:"data"`
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
}

type wsKline struct {
	Start    int64  `json:"start"`
	Interval string `json:"interval"`
	Turnover string `json:"turnover"`
	Confirm  bool   `json:"confirm"`
}

type wsOp struct {
	Op    string   `json:"op"`
	Args  []string `json:"args,omitempty"`
	ReqID string   `json:"req_id,omitempty"`
}
