package infra

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"momentum_go/internal/domain"
)

// GetUserAgent returns the User-Agent sent on REST and WS handshakes.
func GetUserAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s)", AppName, Version, runtime.GOOS, runtime.GOARCH)
}

// Config holds every application setting. Secrets loaded from the file are
// overridden by the secrets file and then by environment variables.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		// PprofAddr serves net/http/pprof when set, e.g. localhost:6060.
		PprofAddr string `yaml:"pprof_addr"`
	} `yaml:"app"`

	Trading struct {
		// ConfirmLive must be true before any live instance may start.
		ConfirmLive  bool    `yaml:"confirm_live"`
		TakerFeeRate float64 `yaml:"taker_fee_rate"`
		MakerFeeRate float64 `yaml:"maker_fee_rate"`
	} `yaml:"trading"`

	API struct {
		Bybit struct {
			WSURL        string `yaml:"ws_url"`
			RestURL      string `yaml:"rest_url"`
			APIKey       string `yaml:"api_key"`
			APISecret    string `yaml:"api_secret"`
			RecvWindowMs int    `yaml:"recv_window_ms"`
			SecretsFile  string `yaml:"secrets_file"`
		} `yaml:"bybit"`
	} `yaml:"api"`

	Market MarketConfig `yaml:"market"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Bots []domain.BotConfig `yaml:"bots"`
}

// MarketConfig tunes the market data engine.
type MarketConfig struct {
	SampleCapacity     int `yaml:"sample_capacity"`
	TurnoverHistory    int `yaml:"turnover_history"`
	InboxSize          int `yaml:"inbox_size"`
	MaxUniverse        int `yaml:"max_universe"`
	UniverseRefreshSec int `yaml:"universe_refresh_sec"`
	SafetyReconcileSec int `yaml:"safety_reconcile_sec"`
	SubscribeChunk     int `yaml:"subscribe_chunk"`
	SubscribeDelayMs   int `yaml:"subscribe_delay_ms"`
}

func (m MarketConfig) UniverseRefresh() time.Duration {
	return time.Duration(m.UniverseRefreshSec) * time.Second
}

func (m MarketConfig) SafetyReconcile() time.Duration {
	return time.Duration(m.SafetyReconcileSec) * time.Second
}

// SubscribeDelay is the pause between subscription chunks; a negative
// setting disables it.
func (m MarketConfig) SubscribeDelay() time.Duration {
	if m.SubscribeDelayMs < 0 {
		return 0
	}
	return time.Duration(m.SubscribeDelayMs) * time.Millisecond
}

// LoadConfig reads, overrides and validates the YAML config at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfig without the file read.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if path := cfg.API.Bybit.SecretsFile; path != "" {
		sec, err := LoadSecretConfig(path)
		if err != nil {
			return nil, err
		}
		sec.Apply(&cfg)
	}
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = AppName
	}
	if c.App.Version == "" {
		c.App.Version = Version
	}
	if c.API.Bybit.WSURL == "" {
		c.API.Bybit.WSURL = "wss://stream.bybit.com/v5/public/linear"
	}
	if c.API.Bybit.RestURL == "" {
		c.API.Bybit.RestURL = "https://api.bybit.com"
	}
	if c.API.Bybit.RecvWindowMs <= 0 {
		c.API.Bybit.RecvWindowMs = 5000
	}
	m := &c.Market
	if m.SampleCapacity <= 0 {
		m.SampleCapacity = 1000
	}
	if m.TurnoverHistory <= 0 {
		m.TurnoverHistory = 20
	}
	if m.InboxSize <= 0 {
		m.InboxSize = 8192
	}
	if m.MaxUniverse <= 0 {
		m.MaxUniverse = domain.MaxUniverseCap
	}
	if m.UniverseRefreshSec <= 0 {
		m.UniverseRefreshSec = 900
	}
	if m.SafetyReconcileSec <= 0 {
		m.SafetyReconcileSec = 45
	}
	if m.SubscribeChunk <= 0 {
		m.SubscribeChunk = 10
	}
	if m.SubscribeDelayMs == 0 {
		m.SubscribeDelayMs = 150
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	b := c.API.Bybit
	if !strings.HasPrefix(b.WSURL, "ws://") && !strings.HasPrefix(b.WSURL, "wss://") {
		return fmt.Errorf("invalid Bybit WS URL: %s", b.WSURL)
	}
	if !strings.HasPrefix(b.RestURL, "http://") && !strings.HasPrefix(b.RestURL, "https://") {
		return fmt.Errorf("invalid Bybit REST URL: %s", b.RestURL)
	}
	if c.Market.SampleCapacity < domain.MaxWindowMinutes*60 {
		return fmt.Errorf("market.sample_capacity must cover the longest window (%ds)", domain.MaxWindowMinutes*60)
	}
	if c.Market.MaxUniverse > domain.MaxUniverseCap {
		return fmt.Errorf("market.max_universe must not exceed %d", domain.MaxUniverseCap)
	}
	if c.Trading.TakerFeeRate < 0 || c.Trading.MakerFeeRate < 0 {
		return fmt.Errorf("fee rates must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}

// HasCredentials reports whether signed endpoints can be used.
func (c *Config) HasCredentials() bool {
	return c.API.Bybit.APIKey != "" && c.API.Bybit.APISecret != ""
}

// overrideWithEnv lets environment variables take precedence over the files.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("MOMENTUM_BYBIT_KEY"); key != "" {
		cfg.API.Bybit.APIKey = key
	}
	if secret := os.Getenv("MOMENTUM_BYBIT_SECRET"); secret != "" {
		cfg.API.Bybit.APISecret = secret
	}
	if os.Getenv("CONFIRM_REAL_MONEY") == "true" {
		cfg.Trading.ConfirmLive = true
	}
	if path := os.Getenv("MOMENTUM_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}
}
