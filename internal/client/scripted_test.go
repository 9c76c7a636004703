package client

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/btlink/internal/protocol"
	"github.com/danmuck/btlink/internal/transport"
)

// scriptedTransport feeds ReceivePacket from a channel the test controls.
type scriptedTransport struct {
	connectErr error
	sendErr    error
	// pokeOnInterrupt makes Interrupt deliver a frame instead of unblocking
	// with an error, like a daemon answering a poke.
	pokeOnInterrupt bool
	// ignoreInterrupt leaves ReceivePacket blocked until Disconnect.
	ignoreInterrupt bool

	incoming chan protocol.Packet
	stop     chan struct{}
	stopOnce sync.Once

	mu          sync.Mutex
	connected   bool
	sent        []protocol.Packet
	interrupts  atomic.Int32
	disconnects atomic.Int32
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		incoming: make(chan protocol.Packet, 64),
		stop:     make(chan struct{}),
	}
}

func (s *scriptedTransport) Connect(context.Context) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *scriptedTransport) SendPacket(p protocol.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return transport.ErrNotConnected
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, p)
	return nil
}

func (s *scriptedTransport) ReceivePacket() (protocol.Packet, error) {
	select {
	case p, ok := <-s.incoming:
		if !ok {
			return protocol.Packet{}, io.EOF
		}
		return p, nil
	case <-s.stop:
		return protocol.Packet{}, transport.ErrInterrupted
	}
}

func (s *scriptedTransport) Interrupt() error {
	s.interrupts.Add(1)
	switch {
	case s.ignoreInterrupt:
	case s.pokeOnInterrupt:
		s.incoming <- protocol.NewPacket(protocol.PacketEvent, 0, []byte{0x60, 1, 2})
	default:
		s.stopOnce.Do(func() { close(s.stop) })
	}
	return nil
}

func (s *scriptedTransport) Disconnect() error {
	s.disconnects.Add(1)
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// push queues a frame as if the daemon had written it.
func (s *scriptedTransport) push(typ protocol.PacketType, channel uint16, payload []byte) {
	s.incoming <- protocol.NewPacket(typ, channel, payload)
}

// hangup ends the stream.
func (s *scriptedTransport) hangup() { close(s.incoming) }

func (s *scriptedTransport) sentPackets() []protocol.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Packet(nil), s.sent...)
}

// scriptedFactory hands out transports in creation order.
type scriptedFactory struct {
	mu    sync.Mutex
	made  []*scriptedTransport
	setup func(*scriptedTransport)
}

func (f *scriptedFactory) New(transport.Config) (transport.Transport, error) {
	tr := newScriptedTransport()
	if f.setup != nil {
		f.setup(tr)
	}
	f.mu.Lock()
	f.made = append(f.made, tr)
	f.mu.Unlock()
	return tr, nil
}

func (f *scriptedFactory) at(i int) *scriptedTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.made[i]
}

func (f *scriptedFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.made)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JoinTimeout = 200 * time.Millisecond
	return cfg
}
