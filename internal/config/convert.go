package config

import (
	"github.com/danmuck/btlink/internal/client"
	"github.com/danmuck/btlink/internal/protocol/frame"
	"github.com/danmuck/btlink/internal/transport"
)

func (c Config) TransportConfig() transport.Config {
	unblock, err := transport.ParseUnblockStrategy(c.Unblock)
	if err != nil {
		unblock = transport.UnblockDeadline
	}
	return transport.Config{
		Host:           c.Host,
		Port:           c.Port,
		SocketPath:     c.SocketPath,
		Limits:         frame.Limits{MaxPayloadBytes: c.MaxPayloadBytes},
		ConnectTimeout: c.ConnectTimeout,
		WriteTimeout:   c.WriteTimeout,
		Unblock:        unblock,
	}
}

func (c Config) ClientConfig() client.Config {
	return client.Config{
		Transport:   c.TransportConfig(),
		JoinTimeout: c.JoinTimeout,
		Backoff: client.BackoffConfig{
			InitialDelay: c.BackoffInitial,
			Multiplier:   c.BackoffMultiplier,
			MaxDelay:     c.BackoffMax,
			Jitter:       c.BackoffJitter,
		},
		MaxConnectAttempts: c.MaxConnectAttempt,
	}
}
