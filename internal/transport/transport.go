// Package transport moves frames between the client and the daemon socket.
//
// Both variants share one net.Conn implementation and differ only in how the
// connection is dialed. Neither adds protocol logic beyond byte transport.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/btlink/internal/protocol"
	"github.com/danmuck/btlink/internal/protocol/frame"
)

const (
	DefaultPort       uint16 = 13333
	DefaultSocketPath        = "/tmp/BTstack"
	DefaultHost              = "127.0.0.1"
)

var (
	ErrNotConnected       = errors.New("transport: not connected")
	ErrAlreadyConnected   = errors.New("transport: already connected")
	ErrClosed             = errors.New("transport: closed")
	ErrInterrupted        = errors.New("transport: receive interrupted")
	ErrSocketPathRequired = errors.New("transport: socket path required")
	ErrUnknownUnblock     = errors.New("transport: unknown unblock strategy")
)

// Transport is the byte-level contract the client engine drives.
//
// ReceivePacket blocks until a full frame arrives, the stream ends (io.EOF,
// ErrClosed, or a short read), or Interrupt unblocks it (ErrInterrupted).
type Transport interface {
	Connect(ctx context.Context) error
	SendPacket(p protocol.Packet) error
	ReceivePacket() (protocol.Packet, error)
	Interrupt() error
	Disconnect() error
}

// Kind selects the dial target.
type Kind int

const (
	KindLocalSocket Kind = iota
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindLocalSocket:
		return "local_socket"
	default:
		return "kind_" + strconv.Itoa(int(k))
	}
}

// UnblockStrategy selects how Interrupt wakes a blocked ReceivePacket.
type UnblockStrategy string

const (
	// UnblockDeadline expires the read deadline on the connection.
	UnblockDeadline UnblockStrategy = "deadline"
	// UnblockPoke sends a GetState command and relies on the daemon's reply
	// to wake the reader. It assumes the daemon answers promptly and that
	// GetState has no side effects; prefer UnblockDeadline.
	UnblockPoke UnblockStrategy = "poke"
)

func ParseUnblockStrategy(raw string) (UnblockStrategy, error) {
	switch s := UnblockStrategy(strings.ToLower(strings.TrimSpace(raw))); s {
	case "":
		return UnblockDeadline, nil
	case UnblockDeadline, UnblockPoke:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownUnblock, raw)
	}
}

// Config describes where the daemon listens and how frames are bounded.
type Config struct {
	Host           string
	Port           uint16
	SocketPath     string
	Limits         frame.Limits
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Unblock        UnblockStrategy
}

func DefaultConfig() Config {
	return Config{
		Host:           DefaultHost,
		SocketPath:     DefaultSocketPath,
		Limits:         frame.DefaultLimits(),
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   5 * time.Second,
		Unblock:        UnblockDeadline,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.Host) == "" {
		c.Host = def.Host
	}
	c.Limits = c.Limits.WithDefaults()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Unblock == "" {
		c.Unblock = def.Unblock
	}
	return c
}

// Kind reports the transport variant: network when a port is set, else local socket.
func (c Config) Kind() Kind {
	if c.Port != 0 {
		return KindNetwork
	}
	return KindLocalSocket
}

// Target returns the dial network and address for c.
func (c Config) Target() (network, address string) {
	if c.Kind() == KindNetwork {
		return "tcp", net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
	}
	return "unix", c.SocketPath
}

func (c Config) Validate() error {
	if c.Kind() == KindLocalSocket && strings.TrimSpace(c.SocketPath) == "" {
		return ErrSocketPathRequired
	}
	if _, err := ParseUnblockStrategy(string(c.Unblock)); err != nil {
		return err
	}
	return nil
}

// Factory builds a fresh, unconnected transport.
type Factory func(cfg Config) (Transport, error)

// New selects the transport variant for cfg.
func New(cfg Config) (Transport, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind() {
	case KindNetwork:
		return newStream(cfg, "tcp"), nil
	case KindLocalSocket:
		return newStream(cfg, "unix"), nil
	default:
		return nil, fmt.Errorf("transport: unsupported kind %s", cfg.Kind())
	}
}
