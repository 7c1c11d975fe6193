package verification

import (
	"time"

	"github.com/smallbiznis/payqr/internal/config"
)

// Config controls verification polling and the fallback window.
type Config struct {
	PollInterval   time.Duration
	FallbackWindow time.Duration
	SourceTimeout  time.Duration
	OrderRetention int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   10 * time.Second,
		FallbackWindow: 60 * time.Second,
		SourceTimeout:  15 * time.Second,
		OrderRetention: 200,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.FallbackWindow <= 0 {
		c.FallbackWindow = defaults.FallbackWindow
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = defaults.SourceTimeout
	}
	if c.OrderRetention <= 0 {
		c.OrderRetention = defaults.OrderRetention
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		PollInterval:   cfg.PollInterval,
		FallbackWindow: cfg.FallbackWindow,
		SourceTimeout:  cfg.SourceTimeout,
		OrderRetention: cfg.OrderRetention,
	}.withDefaults()
}
