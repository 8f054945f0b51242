package webui

import (
	"github.com/mudler/LocalCircle/core/engine"
	"github.com/mudler/LocalCircle/core/sse"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	Engine      *engine.Engine
	Broadcaster *sse.Broadcaster
	Gatherer    prometheus.Gatherer
	ApiKeys     []string
}

type Option func(*Config)

func WithEngine(e *engine.Engine) Option {
	return func(c *Config) {
		c.Engine = e
	}
}

// WithBroadcaster serves the broadcaster's notifications on /sse.
func WithBroadcaster(b *sse.Broadcaster) Option {
	return func(c *Config) {
		c.Broadcaster = b
	}
}

// WithGatherer exposes the gathered metrics on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *Config) {
		c.Gatherer = g
	}
}

func WithApiKeys(keys ...string) Option {
	return func(c *Config) {
		c.ApiKeys = keys
	}
}

func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func NewConfig(opts ...Option) *Config {
	c := &Config{
		Broadcaster: sse.NewBroadcaster(100),
		Gatherer:    prometheus.DefaultGatherer,
	}
	c.Apply(opts...)
	return c
}
