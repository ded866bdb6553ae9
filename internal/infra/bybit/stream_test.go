package bybit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum_go/internal/event"
)

func TestStream_OnMessage(t *testing.T) {
	tests := []struct {
		name  string
		msg   string
		check func(t *testing.T, evs []event.Event)
	}{
		{
			name: "ticker delta keeps only present fields",
			msg:  `{"topic":"tickers.BTCUSDT","type":"delta","ts":1700000000123,"data":{"symbol":"BTCUSDT","markPrice":"100.1","openInterestValue":"5000"}}`,
			check: func(t *testing.T, evs []event.Event) {
				require.Len(t, evs, 1)
				u := evs[0].(*event.TickerUpdate)
				assert.Equal(t, "BTCUSDT", u.Symbol)
				assert.Equal(t, 100.1, u.MarkPrice)
				assert.Equal(t, 0.0, u.LastPrice)
				assert.Equal(t, 5000.0, u.OpenInterest)
				assert.Equal(t, int64(1700000000123), u.TsMs)
				assert.False(t, u.Seed)
			},
		},
		{
			name: "kline bars",
			msg:  `{"topic":"kline.5.ETHUSDT","ts":1,"data":[{"start":1700000000000,"interval":"5","turnover":"1234.5","confirm":false},{"start":0,"turnover":"1"}]}`,
			check: func(t *testing.T, evs []event.Event) {
				require.Len(t, evs, 1)
				k := evs[0].(*event.KlineUpdate)
				assert.Equal(t, "ETHUSDT", k.Symbol)
				assert.Equal(t, "5", k.Interval)
				assert.Equal(t, 1234.5, k.Turnover)
			},
		},
		{name: "pong ack", msg: `{"op":"pong","success":true}`},
		{name: "rejected subscribe", msg: `{"op":"subscribe","success":false,"ret_msg":"bad topic"}`},
		{name: "garbage", msg: `not json`},
		{name: "bad kline topic", msg: `{"topic":"kline.5","data":[]}`},
		{name: "ticker payload not an object", msg: `{"topic":"tickers.BTCUSDT","data":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inbox := make(chan event.Event, 4)
			s := NewStream("", inbox)
			s.OnMessage(context.Background(), []byte(tt.msg))
			close(inbox)

			var evs []event.Event
			for ev := range inbox {
				evs = append(evs, ev)
			}
			if tt.check != nil {
				tt.check(t, evs)
			} else {
				assert.Empty(t, evs)
			}
		})
	}
}

func TestStream_DropsWhenInboxFull(t *testing.T) {
	inbox := make(chan event.Event, 1)
	s := NewStream("", inbox)
	msg := []byte(`{"topic":"tickers.BTCUSDT","ts":1,"data":{"markPrice":"1"}}`)
	s.OnMessage(context.Background(), msg)
	s.OnMessage(context.Background(), msg)
	assert.Len(t, inbox, 1)
	assert.Equal(t, uint64(1), s.Dropped())
}

func TestStream_SubscribeBeforeConnect(t *testing.T) {
	s := NewStream("", make(chan event.Event, 1))
	assert.Error(t, s.Subscribe(context.Background(), []string{"tickers.BTCUSDT"}))
}

func TestStream_OnConnectRunsReconnectHook(t *testing.T) {
	s := NewStream("", make(chan event.Event, 1))
	called := 0
	s.OnReconnect(func() { called++ })
	require.NoError(t, s.OnConnect(context.Background()))
	assert.Equal(t, 1, called)
}
