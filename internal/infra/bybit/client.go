package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"momentum_go/internal/infra"
)

const (
	MainnetRESTURL = "https://api.bybit.com"
	MainnetWSURL   = "wss://stream.bybit.com/v5/public/linear"

	categoryLinear = "linear"
)

// Client is the Bybit v5 REST client. Public endpoints work without a
// signer; signed endpoints fail fast without one.
type Client struct {
	baseURL  string
	http     *http.Client
	signer   *Signer
	limiters infra.VenueLimiters
	now      func() time.Time
}

// NewClient creates a REST client. signer may be nil for market data only.
func NewClient(baseURL string, signer *Signer, limiters infra.VenueLimiters) *Client {
	if baseURL == "" {
		baseURL = MainnetRESTURL
	}
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 10 * time.Second},
		signer:   signer,
		limiters: limiters,
		now:      time.Now,
	}
}

// CanTrade reports whether signed endpoints are usable.
func (c *Client) CanTrade() bool { return c.signer != nil }

func (c *Client) get(ctx context.Context, rl *infra.RateLimiter, path string, q url.Values, signed bool, out any) error {
	query := q.Encode()
	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if signed {
		if c.signer == nil {
			return fmt.Errorf("bybit %s: no credentials configured", path)
		}
		c.signer.Apply(req.Header, c.now().UnixMilli(), query)
	}
	return c.do(ctx, rl, req, path, out)
}

func (c *Client) post(ctx context.Context, rl *infra.RateLimiter, path string, body any, out any) error {
	if c.signer == nil {
		return fmt.Errorf("bybit %s: no credentials configured", path)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.signer.Apply(req.Header, c.now().UnixMilli(), string(payload))
	return c.do(ctx, rl, req, path, out)
}

func (c *Client) do(ctx context.Context, rl *infra.RateLimiter, req *http.Request, path string, out any) error {
	if rl != nil {
		if err := rl.Wait(ctx); err != nil {
			return err
		}
	}
	req.Header.Set("User-Agent", infra.GetUserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bybit %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("bybit %s: read body: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bybit %s: http %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("bybit %s: decode: %w", path, err)
	}
	if env.RetCode != 0 {
		return &APIError{Code: env.RetCode, Msg: env.RetMsg, Path: path}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("bybit %s: decode result: %w", path, err)
	}
	return nil
}

// parseNumber accepts finite decimal strings only.
func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parsePositive(s string) float64 {
	if f, ok := parseNumber(s); ok && f > 0 {
		return f
	}
	return 0
}

func formatLeverage(l float64) string {
	return strconv.FormatFloat(l, 'f', -1, 64)
}
