package client

import (
	"context"
	"testing"
	"time"

	"github.com/danmuck/btlink/internal/dispatch"
	"github.com/danmuck/btlink/internal/protocol"
	"github.com/danmuck/btlink/internal/protocol/command"
	"github.com/danmuck/btlink/internal/protocol/event"
	"github.com/danmuck/btlink/internal/testutil/fakedaemon"
	"github.com/danmuck/btlink/internal/testutil/testlog"
	"github.com/danmuck/btlink/internal/transport"
)

func newDaemonEngine(t *testing.T, tcfg transport.Config) (*Engine, *recorder) {
	t.Helper()
	cfg := testConfig()
	cfg.Transport = tcfg
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	rec := newRecorder()
	e.RegisterHandler(rec.handle)
	t.Cleanup(func() { _ = e.Disconnect(context.Background()) })
	return e, rec
}

func TestUnixDaemonSession(t *testing.T) {
	testlog.Start(t)

	d := fakedaemon.ListenUnix(t)
	d.AnswerGetState(true)
	e, rec := newDaemonEngine(t, transport.Config{SocketPath: d.SocketPath()})
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	peer := d.Accept(2 * time.Second)

	if err := e.Send(command.GetState()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := peer.Next(2 * time.Second); err != nil {
		t.Fatalf("daemon did not see command: %v", err)
	}
	st, ok := rec.next(t).(event.State)
	if !ok || st.State != event.StateWorking {
		t.Fatalf("expected working state event")
	}

	if err := peer.Send(protocol.NewPacket(protocol.PacketL2CAPData, 0x0041, []byte{1, 2, 3})); err != nil {
		t.Fatalf("peer send: %v", err)
	}
	if dp, ok := rec.next(t).(dispatch.DataPacket); !ok || dp.Channel != 0x0041 {
		t.Fatalf("expected l2cap data on 0x0041")
	}

	peer.Close()
	if _, ok := rec.next(t).(dispatch.DaemonDisconnected); !ok {
		t.Fatalf("expected DaemonDisconnected after daemon hangup")
	}
	rec.expectNone(t, 100*time.Millisecond)
}

func TestTCPDaemonDisconnectUnblocksRead(t *testing.T) {
	testlog.Start(t)

	d := fakedaemon.ListenTCP(t)
	e, rec := newDaemonEngine(t, transport.Config{Port: d.Port()})
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	d.Accept(2 * time.Second)

	done := make(chan error, 1)
	go func() { done <- e.Disconnect(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("disconnect: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("disconnect did not unblock the receive loop")
	}
	rec.expectNone(t, 100*time.Millisecond)
}

func TestPokeUnblockDropsReply(t *testing.T) {
	testlog.Start(t)

	d := fakedaemon.ListenUnix(t)
	d.AnswerGetState(true)
	e, rec := newDaemonEngine(t, transport.Config{SocketPath: d.SocketPath(), Unblock: transport.UnblockPoke})
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	peer := d.Accept(2 * time.Second)

	if err := e.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	sent, err := peer.Next(2 * time.Second)
	if err != nil {
		t.Fatalf("daemon did not receive poke: %v", err)
	}
	if sent.Type() != protocol.PacketCommand {
		t.Fatalf("unexpected poke packet: %s", sent)
	}
	rec.expectNone(t, 100*time.Millisecond)
}

func TestReconnectAgainstDaemon(t *testing.T) {
	testlog.Start(t)

	d := fakedaemon.ListenUnix(t)
	e, rec := newDaemonEngine(t, transport.Config{SocketPath: d.SocketPath()})
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("connect 1: %v", err)
	}
	first := d.Accept(2 * time.Second)
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("connect 2: %v", err)
	}
	second := d.Accept(2 * time.Second)

	_ = first.SendEvent([]byte{event.CodeConnectionCountChanged, 1, 9})
	if err := second.SendEvent([]byte{event.CodeConnectionCountChanged, 1, 1}); err != nil {
		t.Fatalf("second send: %v", err)
	}
	cc, ok := rec.next(t).(event.ConnectionCountChanged)
	if !ok || cc.Count != 1 {
		t.Fatalf("expected event from newest connection only, got %#v", cc)
	}
	rec.expectNone(t, 100*time.Millisecond)
}
