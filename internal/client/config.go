package client

import (
	"time"

	"github.com/danmuck/btlink/internal/dispatch"
	"github.com/danmuck/btlink/internal/transport"
)

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines engine behavior.
type Config struct {
	Transport transport.Config
	// JoinTimeout bounds the wait for a receive loop after Interrupt. When it
	// elapses the transport is closed to force the read out.
	JoinTimeout        time.Duration
	Backoff            BackoffConfig
	MaxConnectAttempts int
	// Events decodes event payloads. Nil selects event.DefaultRegistry.
	Events dispatch.EventDecoder
}

func DefaultConfig() Config {
	return Config{
		Transport:   transport.DefaultConfig(),
		JoinTimeout: 2 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Transport = c.Transport.WithDefaults()
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = def.JoinTimeout
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier <= 0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = def.Backoff.MaxDelay
	}
	return c
}
