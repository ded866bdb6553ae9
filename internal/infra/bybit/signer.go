package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
)

// Signer handles Bybit v5 request authentication. Keys are held as []byte
// so they can be wiped.
type Signer struct {
	apiKey     []byte
	secret     []byte
	recvWindow string
}

// NewSigner creates a signer. recvWindowMs <= 0 falls back to 5000.
func NewSigner(apiKey, secret string, recvWindowMs int) *Signer {
	if recvWindowMs <= 0 {
		recvWindowMs = 5000
	}
	return &Signer{
		apiKey:     []byte(apiKey),
		secret:     []byte(secret),
		recvWindow: strconv.Itoa(recvWindowMs),
	}
}

// Wipe clears the keys from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	for i := range s.apiKey {
		s.apiKey[i] = 0
	}
	for i := range s.secret {
		s.secret[i] = 0
	}
}

// Sign returns hex(HMAC_SHA256(timestamp + apiKey + recvWindow + payload)).
// payload is the raw query string for GET and the JSON body for POST.
func (s *Signer) Sign(timestampMs int64, payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(timestampMs, 10)))
	mac.Write(s.apiKey)
	mac.Write([]byte(s.recvWindow))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Apply sets the X-BAPI-* headers on req.
func (s *Signer) Apply(h http.Header, timestampMs int64, payload string) {
	h.Set("X-BAPI-API-KEY", string(s.apiKey))
	h.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestampMs, 10))
	h.Set("X-BAPI-RECV-WINDOW", s.recvWindow)
	h.Set("X-BAPI-SIGN", s.Sign(timestampMs, payload))
}
