package eventbus

import (
	"time"

	"github.com/smallbiznis/procurelink/internal/config"
)

const (
	DefaultName             = "integration_dispatcher"
	defaultDispatchInterval = time.Second
	defaultMaxBatch         = 500
	defaultRecentSize       = 200
)

// Config controls the dispatcher cadence.
type Config struct {
	Name             string
	DispatchInterval time.Duration
	MaxBatch         int
	RecentSize       int
}

func ConfigFromApp(cfg config.Config) Config {
	return Config{
		DispatchInterval: cfg.EventBus.DispatchInterval,
		MaxBatch:         cfg.EventBus.MaxBatch,
		RecentSize:       cfg.EventBus.RecentSize,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = defaultDispatchInterval
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = defaultMaxBatch
	}
	if c.RecentSize <= 0 {
		c.RecentSize = defaultRecentSize
	}
	return c
}
