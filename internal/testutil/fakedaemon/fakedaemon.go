// Package fakedaemon is a scripted stand-in for the daemon socket in tests.
package fakedaemon

import (
	"bufio"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/btlink/internal/protocol"
	"github.com/danmuck/btlink/internal/protocol/command"
	"github.com/danmuck/btlink/internal/protocol/event"
	"github.com/danmuck/btlink/internal/protocol/frame"
)

// Daemon accepts client connections on a unix socket or TCP loopback.
type Daemon struct {
	t          testing.TB
	ln         net.Listener
	socketPath string
	peers      chan *Peer

	answerGetState atomic.Bool
	wg             sync.WaitGroup

	mu      sync.Mutex
	all     []*Peer
	closed  bool
	replies map[uint16][][]byte
}

// ListenUnix serves on a fresh unix socket under a short temp dir.
func ListenUnix(t testing.TB) *Daemon {
	t.Helper()
	dir, err := os.MkdirTemp("", "btd")
	if err != nil {
		t.Fatalf("fakedaemon: temp dir: %v", err)
	}
	path := filepath.Join(dir, "d.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		_ = os.RemoveAll(dir)
		t.Fatalf("fakedaemon: listen unix: %v", err)
	}
	d := start(t, ln)
	d.socketPath = path
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return d
}

// ListenTCP serves on an ephemeral loopback port.
func ListenTCP(t testing.TB) *Daemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fakedaemon: listen tcp: %v", err)
	}
	return start(t, ln)
}

func start(t testing.TB, ln net.Listener) *Daemon {
	d := &Daemon{t: t, ln: ln, peers: make(chan *Peer, 8)}
	d.wg.Add(1)
	go d.acceptLoop()
	t.Cleanup(d.Close)
	return d
}

func (d *Daemon) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		p := &Peer{
			daemon:   d,
			conn:     conn,
			received: make(chan protocol.Packet, 64),
		}
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			_ = conn.Close()
			return
		}
		d.all = append(d.all, p)
		d.mu.Unlock()
		d.wg.Add(1)
		go p.readLoop()
		select {
		case d.peers <- p:
		default:
			p.Close()
		}
	}
}

// AnswerGetState makes every peer reply to GetState with a State event.
func (d *Daemon) AnswerGetState(on bool) { d.answerGetState.Store(on) }

// Reply scripts the event payloads sent back, in order, whenever a peer
// receives a command with opcode.
func (d *Daemon) Reply(opcode uint16, events ...[]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.replies == nil {
		d.replies = make(map[uint16][][]byte)
	}
	d.replies[opcode] = events
}

func (d *Daemon) repliesFor(p protocol.Packet) [][]byte {
	if p.Type() != protocol.PacketCommand {
		return nil
	}
	cmd, err := command.Decode(p.Payload())
	if err != nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.replies[cmd.Opcode]
}

func (d *Daemon) SocketPath() string { return d.socketPath }

func (d *Daemon) Port() uint16 {
	if addr, ok := d.ln.Addr().(*net.TCPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}

// Accept waits for the next client connection.
func (d *Daemon) Accept(timeout time.Duration) *Peer {
	d.t.Helper()
	select {
	case p := <-d.peers:
		return p
	case <-time.After(timeout):
		d.t.Fatalf("fakedaemon: no client connected within %s", timeout)
		return nil
	}
}

func (d *Daemon) Close() {
	_ = d.ln.Close()
	d.mu.Lock()
	d.closed = true
	peers := append([]*Peer(nil), d.all...)
	d.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
	d.wg.Wait()
}

// Peer is one accepted client connection.
type Peer struct {
	daemon   *Daemon
	conn     net.Conn
	writeMu  sync.Mutex
	received chan protocol.Packet
}

func (p *Peer) readLoop() {
	defer p.daemon.wg.Done()
	defer close(p.received)
	r := bufio.NewReader(p.conn)
	for {
		f, err := frame.ReadFrame(r, frame.DefaultLimits())
		if err != nil {
			return
		}
		pkt := protocol.PacketFromFrame(f)
		if p.daemon.answerGetState.Load() && isGetState(pkt) {
			_ = p.SendEvent([]byte{event.CodeState, 1, uint8(event.StateWorking)})
		}
		for _, ev := range p.daemon.repliesFor(pkt) {
			_ = p.SendEvent(ev)
		}
		select {
		case p.received <- pkt:
		default:
		}
	}
}

func isGetState(p protocol.Packet) bool {
	if p.Type() != protocol.PacketCommand {
		return false
	}
	cmd, err := command.Decode(p.Payload())
	return err == nil && cmd.Opcode == command.GetState().Opcode
}

// Send writes one frame to the client.
func (p *Peer) Send(pkt protocol.Packet) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return frame.WriteFrame(p.conn, pkt.Frame(), frame.DefaultLimits())
}

func (p *Peer) SendEvent(payload []byte) error {
	return p.Send(protocol.NewPacket(protocol.PacketEvent, 0, payload))
}

// WriteRaw writes bytes verbatim, for truncated-frame cases.
func (p *Peer) WriteRaw(b []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := p.conn.Write(b)
	return err
}

// Next returns the next packet the client sent.
func (p *Peer) Next(timeout time.Duration) (protocol.Packet, error) {
	select {
	case pkt, ok := <-p.received:
		if !ok {
			return protocol.Packet{}, errors.New("fakedaemon: peer closed")
		}
		return pkt, nil
	case <-time.After(timeout):
		return protocol.Packet{}, errors.New("fakedaemon: timeout waiting for packet")
	}
}

func (p *Peer) Close() {
	_ = p.conn.Close()
}
