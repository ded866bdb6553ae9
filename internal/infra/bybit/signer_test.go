package bybit

import (
	"net/http"
	"testing"
)

func TestSigner_Sign(t *testing.T) {
	s := NewSigner("key", "secret", 5000)
	got := s.Sign(1700000000000, "category=linear&symbol=BTCUSDT")
	want := "3906b813750309cce9879a975510651953382a28592d69104d0b599e3d201f40"
	if got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}

func TestSigner_ApplyAndWipe(t *testing.T) {
	s := NewSigner("key", "secret", 0)
	h := make(http.Header)
	s.Apply(h, 1700000000000, "")

	if h.Get("X-BAPI-API-KEY") != "key" || h.Get("X-BAPI-RECV-WINDOW") != "5000" {
		t.Errorf("unexpected headers: %v", h)
	}
	if h.Get("X-BAPI-TIMESTAMP") != "1700000000000" || len(h.Get("X-BAPI-SIGN")) != 64 {
		t.Errorf("unexpected signature headers: %v", h)
	}

	s.Wipe()
	for _, b := range s.secret {
		if b != 0 {
			t.Fatal("secret not wiped")
		}
	}
}
