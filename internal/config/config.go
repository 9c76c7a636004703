package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/btlink/internal/protocol/frame"
	"github.com/danmuck/btlink/internal/transport"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config is the on-disk client configuration.
type Config struct {
	Host              string
	Port              uint16
	SocketPath        string
	MaxPayloadBytes   int
	ConnectTimeout    time.Duration
	WriteTimeout      time.Duration
	JoinTimeout       time.Duration
	Unblock           string
	Reconnect         bool
	MaxConnectAttempt int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffMultiplier float64
	BackoffJitter     bool
	MetricsAddr       string
	LogLevel          string
}

type fileConfig struct {
	Host              string  `toml:"host"`
	Port              int     `toml:"port"`
	SocketPath        string  `toml:"socket_path"`
	MaxPayloadBytes   int     `toml:"max_payload_bytes"`
	ConnectTimeout    string  `toml:"connect_timeout"`
	WriteTimeout      string  `toml:"write_timeout"`
	JoinTimeout       string  `toml:"join_timeout"`
	Unblock           string  `toml:"unblock"`
	Reconnect         bool    `toml:"reconnect"`
	MaxConnectAttempt int     `toml:"max_connect_attempts"`
	BackoffInitial    string  `toml:"backoff_initial"`
	BackoffMax        string  `toml:"backoff_max"`
	BackoffMultiplier float64 `toml:"backoff_multiplier"`
	BackoffJitter     bool    `toml:"backoff_jitter"`
	MetricsAddr       string  `toml:"metrics_addr"`
	LogLevel          string  `toml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Host:              transport.DefaultHost,
		SocketPath:        transport.DefaultSocketPath,
		MaxPayloadBytes:   frame.DefaultMaxPayloadBytes,
		ConnectTimeout:    5 * time.Second,
		WriteTimeout:      5 * time.Second,
		JoinTimeout:       2 * time.Second,
		Unblock:           string(transport.UnblockDeadline),
		BackoffInitial:    250 * time.Millisecond,
		BackoffMax:        5 * time.Second,
		BackoffMultiplier: 2.0,
		BackoffJitter:     true,
	}
}

// Load reads path and overlays every key it defines onto DefaultConfig.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		if raw.Port < 0 || raw.Port > 0xFFFF {
			return Config{}, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, raw.Port)
		}
		cfg.Port = uint16(raw.Port)
	}
	if meta.IsDefined("socket_path") {
		cfg.SocketPath = strings.TrimSpace(raw.SocketPath)
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
		{"join_timeout", raw.JoinTimeout, &cfg.JoinTimeout},
		{"backoff_initial", raw.BackoffInitial, &cfg.BackoffInitial},
		{"backoff_max", raw.BackoffMax, &cfg.BackoffMax},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("unblock") {
		cfg.Unblock = strings.TrimSpace(raw.Unblock)
	}
	if meta.IsDefined("reconnect") {
		cfg.Reconnect = raw.Reconnect
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempt = raw.MaxConnectAttempt
	}
	if meta.IsDefined("backoff_multiplier") {
		cfg.BackoffMultiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_jitter") {
		cfg.BackoffJitter = raw.BackoffJitter
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port == 0 && strings.TrimSpace(c.SocketPath) == "" {
		return fmt.Errorf("%w: socket_path required when port is 0", ErrInvalidConfig)
	}
	if c.MaxPayloadBytes <= 0 || c.MaxPayloadBytes > frame.MaxEncodableBytes {
		return fmt.Errorf("%w: max_payload_bytes must be in 1..%d", ErrInvalidConfig, frame.MaxEncodableBytes)
	}
	if _, err := transport.ParseUnblockStrategy(c.Unblock); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.BackoffMultiplier < 0 {
		return fmt.Errorf("%w: backoff_multiplier must not be negative", ErrInvalidConfig)
	}
	for name, d := range map[string]time.Duration{
		"connect_timeout": c.ConnectTimeout,
		"write_timeout":   c.WriteTimeout,
		"join_timeout":    c.JoinTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	return nil
}
