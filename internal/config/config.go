// Package config loads process settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ListenAddr     string        `env:"LISTEN_ADDR"      envDefault:":8080"`
	ProxyURL       string        `env:"PROXY_URL"        envDefault:"https://allorigins.hexlet.app"`
	Locale         string        `env:"LOCALE"           envDefault:"en"`
	LogLevel       slog.Level    `env:"LOG_LEVEL"        envDefault:"info"`
	FetchTimeout   time.Duration `env:"FETCH_TIMEOUT"    envDefault:"20s"`
	ProxyRateLimit float64       `env:"PROXY_RATE_LIMIT" envDefault:"10"`
	OpenAIAPIKey   string        `env:"OPENAI_API_KEY"`
}

func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.FetchTimeout <= 0 {
		return Config{}, fmt.Errorf("FETCH_TIMEOUT must be positive (FETCH_TIMEOUT = %s)", cfg.FetchTimeout)
	}

	if cfg.ProxyRateLimit < 0 {
		return Config{}, fmt.Errorf("PROXY_RATE_LIMIT must not be negative (PROXY_RATE_LIMIT = %v)", cfg.ProxyRateLimit)
	}

	return cfg, nil
}
