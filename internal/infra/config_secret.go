package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SecretConfig matches the layout of secrets/bybit.yaml.
type SecretConfig struct {
	API struct {
		Bybit struct {
			APIKey    string `yaml:"api_key"`
			APISecret string `yaml:"api_secret"`
		} `yaml:"bybit"`
	} `yaml:"api"`
}

// LoadSecretConfig loads API keys from a separate yaml file.
func LoadSecretConfig(path string) (*SecretConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret config: %w", err)
	}

	var cfg SecretConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse secret config: %w", err)
	}
	return &cfg, nil
}

// Apply copies non-empty secrets into cfg.
func (s *SecretConfig) Apply(cfg *Config) {
	if s.API.Bybit.APIKey != "" {
		cfg.API.Bybit.APIKey = s.API.Bybit.APIKey
	}
	if s.API.Bybit.APISecret != "" {
		cfg.API.Bybit.APISecret = s.API.Bybit.APISecret
	}
}
