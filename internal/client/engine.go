package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/btlink/internal/dispatch"
	"github.com/danmuck/btlink/internal/observability"
	"github.com/danmuck/btlink/internal/protocol"
	"github.com/danmuck/btlink/internal/protocol/command"
	"github.com/danmuck/btlink/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected = errors.New("client: not connected")
	ErrNilFactory   = errors.New("client: transport factory required")
)

// Handler receives every dispatched message on the receive goroutine.
// ctx identifies that goroutine: pass it (or a context derived from it) to
// Connect or Disconnect when calling them from inside the handler.
type Handler func(ctx context.Context, msg dispatch.Message)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state_%d", int32(s))
	}
}

type taskKey struct{}

// receiveTask is one receive goroutine bound to one transport and epoch.
type receiveTask struct {
	epoch  uint64
	tr     transport.Transport
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *receiveTask) wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-t.done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// Engine owns one daemon connection at a time and its receive goroutine.
type Engine struct {
	cfg        Config
	factory    transport.Factory
	dispatcher *dispatch.Dispatcher

	mu    sync.Mutex
	tr    transport.Transport
	task  *receiveTask
	state atomic.Int32

	epoch   atomic.Uint64
	handler atomic.Pointer[Handler]
	// deliverMu serializes handler calls across receive loops, including a
	// retired loop whose join was abandoned while it sat in the handler.
	deliverMu sync.Mutex

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New returns a disconnected engine that dials with transport.New.
func New(cfg Config) (*Engine, error) {
	return NewWithFactory(cfg, transport.New)
}

func NewWithFactory(cfg Config, factory transport.Factory) (*Engine, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Transport.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:        cfg,
		factory:    factory,
		dispatcher: dispatch.New(cfg.Events),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	e.RegisterHandler(nil)
	return e, nil
}

// RegisterHandler swaps the message handler. Nil installs a no-op.
func (e *Engine) RegisterHandler(h Handler) {
	if h == nil {
		h = func(context.Context, dispatch.Message) {}
	}
	e.handler.Store(&h)
}

func (e *Engine) Epoch() uint64 { return e.epoch.Load() }

func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tr != nil
}

// Connect dials the daemon and starts a receive goroutine under a new epoch.
// An existing connection is retired first.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	oldTr, oldTask := e.detachLocked()
	e.state.Store(int32(StateConnecting))
	e.mu.Unlock()
	if oldTr != nil {
		log.Info().Uint64("epoch", oldTask.epoch).Msg("client: retiring connection before reconnect")
		e.retire(ctx, oldTr, oldTask)
	}

	tr, err := e.factory(e.cfg.Transport)
	if err != nil {
		e.settleDisconnected()
		return err
	}
	if err := tr.Connect(ctx); err != nil {
		e.settleDisconnected()
		return err
	}

	e.mu.Lock()
	prevTr, prevTask := e.detachLocked()
	epoch := e.epoch.Add(1)
	taskCtx, cancel := context.WithCancel(context.Background())
	task := &receiveTask{
		epoch:  epoch,
		tr:     tr,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	task.ctx = context.WithValue(taskCtx, taskKey{}, task)
	e.tr, e.task = tr, task
	e.state.Store(int32(StateConnected))
	e.mu.Unlock()

	// A concurrent Connect may have installed its own transport meanwhile.
	if prevTr != nil {
		e.retire(ctx, prevTr, prevTask)
	}

	network, address := e.cfg.Transport.Target()
	log.Info().Uint64("epoch", epoch).Str("network", network).Str("address", address).Msg("client: connected")
	observability.RecordEpoch(epoch)
	observability.RecordConnected(true)

	go e.receiveLoop(task)
	return nil
}

// Disconnect retires the live connection. With no connection it returns
// immediately. Called from the handler with its ctx, it skips waiting for
// the receive goroutine it is running on.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	tr, task := e.detachLocked()
	if tr == nil {
		e.mu.Unlock()
		return nil
	}
	e.state.Store(int32(StateDisconnecting))
	e.mu.Unlock()

	log.Info().Uint64("epoch", task.epoch).Msg("client: disconnecting")
	err := e.retire(ctx, tr, task)
	e.settleDisconnected()
	return err
}

// SendPacket writes p to the live transport. Write failures leave the
// connection in place.
func (e *Engine) SendPacket(p protocol.Packet) error {
	e.mu.Lock()
	tr := e.tr
	e.mu.Unlock()
	if tr == nil {
		return ErrNotConnected
	}
	err := tr.SendPacket(p)
	observability.RecordFrameSent(p.Type().String(), err)
	if err != nil {
		log.Warn().Err(err).Stringer("packet", p).Msg("client: send failed")
		return fmt.Errorf("client: send %s: %w", p.Type(), err)
	}
	return nil
}

// Send encodes cmd and writes it as a command packet.
func (e *Engine) Send(cmd command.Command) error {
	p, err := cmd.Packet()
	if err != nil {
		return err
	}
	return e.SendPacket(p)
}

// detachLocked bumps the epoch and clears the live connection, if any.
func (e *Engine) detachLocked() (transport.Transport, *receiveTask) {
	tr, task := e.tr, e.task
	if tr == nil {
		return nil, nil
	}
	e.tr, e.task = nil, nil
	e.epoch.Add(1)
	return tr, task
}

// retire stops task and releases tr. The epoch must already be bumped.
func (e *Engine) retire(ctx context.Context, tr transport.Transport, task *receiveTask) error {
	task.cancel()
	if !isTask(ctx, task) {
		if err := tr.Interrupt(); err != nil {
			log.Debug().Err(err).Uint64("epoch", task.epoch).Msg("client: interrupt failed")
		}
		if !task.wait(e.cfg.JoinTimeout) {
			log.Warn().Uint64("epoch", task.epoch).Dur("timeout", e.cfg.JoinTimeout).
				Msg("client: receive loop still blocked, closing transport")
			_ = tr.Disconnect()
			if !task.wait(e.cfg.JoinTimeout) {
				// Most likely a slow handler, or one calling Disconnect without
				// its own ctx. deliverMu keeps it from overlapping the next loop.
				log.Error().Uint64("epoch", task.epoch).Msg("client: receive loop did not exit, abandoning join")
			}
		}
	} else {
		log.Debug().Uint64("epoch", task.epoch).Msg("client: disconnect from receive loop, skipping join")
	}
	return tr.Disconnect()
}

func (e *Engine) settleDisconnected() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tr == nil {
		e.state.Store(int32(StateDisconnected))
		observability.RecordConnected(false)
	}
}

func (e *Engine) current(task *receiveTask) bool {
	return e.epoch.Load() == task.epoch
}

func (e *Engine) receiveLoop(task *receiveTask) {
	defer close(task.done)
	defer task.cancel()
	log.Debug().Uint64("epoch", task.epoch).Msg("client: receive loop started")

	for {
		if !e.current(task) {
			log.Debug().Uint64("epoch", task.epoch).Msg("client: receive loop retired")
			return
		}
		p, err := task.tr.ReceivePacket()
		if !e.current(task) {
			if err == nil {
				observability.RecordStaleFrame()
				log.Debug().Uint64("epoch", task.epoch).Stringer("packet", p).Msg("client: dropping frame from retired loop")
			}
			return
		}
		if err != nil {
			e.handleClosed(task, err)
			return
		}
		observability.RecordFrameReceived(p.Type().String())
		if !e.deliver(task, e.dispatcher.Dispatch(p)) {
			observability.RecordStaleFrame()
			log.Debug().Uint64("epoch", task.epoch).Stringer("packet", p).Msg("client: dropping frame retired while waiting for the handler")
			return
		}
	}
}

// handleClosed tears down a connection the daemon ended and reports it once.
func (e *Engine) handleClosed(task *receiveTask, cause error) {
	e.mu.Lock()
	if e.task != task {
		e.mu.Unlock()
		return
	}
	tr, _ := e.detachLocked()
	e.mu.Unlock()

	if err := tr.Disconnect(); err != nil {
		log.Debug().Err(err).Uint64("epoch", task.epoch).Msg("client: transport close after daemon disconnect")
	}
	e.settleDisconnected()
	observability.RecordDaemonDisconnect()
	log.Warn().Uint64("epoch", task.epoch).Err(cause).Msg("client: daemon disconnected")
	e.deliver(task, dispatch.DaemonDisconnected{Epoch: task.epoch, Err: cause})
}

// deliver runs the handler for task under deliverMu. Frames whose task was
// retired while waiting for the lock are not delivered; the disconnect
// notice always is.
func (e *Engine) deliver(task *receiveTask, msg dispatch.Message) bool {
	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()
	if _, closed := msg.(dispatch.DaemonDisconnected); !closed && !e.current(task) {
		return false
	}
	h := e.handler.Load()
	(*h)(task.ctx, msg)
	return true
}

func isTask(ctx context.Context, task *receiveTask) bool {
	if ctx == nil {
		return false
	}
	t, _ := ctx.Value(taskKey{}).(*receiveTask)
	return t == task
}
