package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/btlink/internal/dispatch"
	"github.com/danmuck/btlink/internal/protocol/command"
	"github.com/danmuck/btlink/internal/protocol/event"
	"github.com/danmuck/btlink/internal/testutil/fakedaemon"
	"github.com/danmuck/btlink/internal/testutil/testlog"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStateCommandPrintsDaemonState(t *testing.T) {
	testlog.Start(t)

	d := fakedaemon.ListenUnix(t)
	d.AnswerGetState(true)

	out, err := runCLI(t, "--socket", d.SocketPath(), "--timeout", "2s", "state")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if strings.TrimSpace(out) != event.StateWorking.String() {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestVersionCommandWaitsForVersionEvent(t *testing.T) {
	testlog.Start(t)

	d := fakedaemon.ListenUnix(t)
	d.Reply(command.GetVersion().Opcode,
		[]byte{event.CodeConnectionCountChanged, 1, 0},
		[]byte{event.CodeDaemonVersion, 4, 0, 1, 0xB9, 0x0C},
	)

	out, err := runCLI(t, "--socket", d.SocketPath(), "--timeout", "2s", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "rev 3257") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestStateCommandTimesOutWithoutReply(t *testing.T) {
	testlog.Start(t)

	d := fakedaemon.ListenUnix(t)
	d.AnswerGetState(false)

	_, err := runCLI(t, "--socket", d.SocketPath(), "--timeout", "100ms", "state")
	if err == nil || !strings.Contains(err.Error(), errNoReply.Error()) {
		t.Fatalf("expected no-reply error, got %v", err)
	}
}

func TestPowerReportsNewState(t *testing.T) {
	testlog.Start(t)

	d := fakedaemon.ListenUnix(t)
	d.Reply(command.SetPowerMode(command.PowerOff).Opcode,
		[]byte{event.CodeState, 1, uint8(event.StateOff)},
	)

	out, err := runCLI(t, "--socket", d.SocketPath(), "--timeout", "2s", "power", "off")
	if err != nil {
		t.Fatalf("power off: %v", err)
	}
	if strings.TrimSpace(out) != event.StateOff.String() {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPowerWaitsForSettledState(t *testing.T) {
	testlog.Start(t)

	d := fakedaemon.ListenUnix(t)
	d.Reply(command.SetPowerMode(command.PowerOn).Opcode,
		[]byte{event.CodeState, 1, uint8(event.StateInitializing)},
		[]byte{event.CodeState, 1, uint8(event.StateWorking)},
	)

	out, err := runCLI(t, "--socket", d.SocketPath(), "--timeout", "2s", "power", "on")
	if err != nil {
		t.Fatalf("power on: %v", err)
	}
	if strings.TrimSpace(out) != event.StateWorking.String() {
		t.Fatalf("expected settled state, got %q", out)
	}
}

func TestPowerRejectsUnknownMode(t *testing.T) {
	testlog.Start(t)

	if _, err := runCLI(t, "power", "turbo"); err == nil {
		t.Fatalf("expected error for unknown power mode")
	}
}

func TestConfigInitThenCheck(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "btlink.toml")
	if _, err := runCLI(t, "config", "init", "--kind", "tcp", path); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := runCLI(t, "config", "init", path); err == nil {
		t.Fatalf("expected refusal to overwrite without --force")
	}
	out, err := runCLI(t, "config", "check", path)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.Contains(out, "ok") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRejectsUnknownLogLevel(t *testing.T) {
	testlog.Start(t)

	if _, err := runCLI(t, "--log-level", "chatty", "config", "check", "x"); err == nil {
		t.Fatalf("expected log level error")
	}
}

func TestFormatMessage(t *testing.T) {
	cases := map[string]dispatch.Message{
		"event state=working":                 event.State{State: event.StateWorking},
		"event connections=2":                 event.ConnectionCountChanged{Count: 2},
		"event power_on_failed":               event.PowerOnFailed{},
		"event system_bluetooth_enabled=true": event.SystemBluetoothEnabled{Enabled: true},
	}
	for want, msg := range cases {
		if got := formatMessage(msg); got != want {
			t.Fatalf("format %T: got=%q want=%q", msg, got, want)
		}
	}
}
