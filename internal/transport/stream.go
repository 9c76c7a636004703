package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/btlink/internal/protocol"
	"github.com/danmuck/btlink/internal/protocol/command"
	"github.com/danmuck/btlink/internal/protocol/frame"
)

// stream is a Transport over a dialed net.Conn.
type stream struct {
	cfg     Config
	network string
	address string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	writeMu     sync.Mutex
	interrupted atomic.Bool
}

func newStream(cfg Config, network string) *stream {
	_, address := cfg.Target()
	return &stream{cfg: cfg, network: network, address: address}
}

func (s *stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrAlreadyConnected
	}
	dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, s.network, s.address)
	if err != nil {
		return fmt.Errorf("transport: dial %s %s: %w", s.network, s.address, err)
	}
	s.conn = conn
	s.reader = bufio.NewReaderSize(conn, frame.HeaderLen+s.cfg.Limits.MaxPayloadBytes)
	s.interrupted.Store(false)
	return nil
}

func (s *stream) current() (net.Conn, *bufio.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.reader
}

func (s *stream) SendPacket(p protocol.Packet) error {
	conn, _ := s.current()
	if conn == nil {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return mapConnErr(err)
		}
	}
	if err := frame.WriteFrame(conn, p.Frame(), s.cfg.Limits); err != nil {
		return mapConnErr(err)
	}
	return nil
}

func (s *stream) ReceivePacket() (protocol.Packet, error) {
	conn, reader := s.current()
	if conn == nil {
		return protocol.Packet{}, ErrNotConnected
	}
	f, err := frame.ReadFrame(reader, s.cfg.Limits)
	if err != nil {
		if s.interrupted.Load() {
			return protocol.Packet{}, fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		return protocol.Packet{}, mapConnErr(err)
	}
	return protocol.PacketFromFrame(f), nil
}

// Interrupt wakes a goroutine blocked in ReceivePacket.
func (s *stream) Interrupt() error {
	conn, _ := s.current()
	if conn == nil {
		return ErrNotConnected
	}
	s.interrupted.Store(true)
	switch s.cfg.Unblock {
	case UnblockPoke:
		p, err := command.GetState().Packet()
		if err != nil {
			return err
		}
		return s.SendPacket(p)
	default:
		return mapConnErr(conn.SetReadDeadline(time.Now()))
	}
}

func (s *stream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.reader = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func mapConnErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
