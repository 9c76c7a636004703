package protocol

import (
	"bytes"
	"testing"

	"github.com/danmuck/btlink/internal/protocol/frame"
)

func TestNewPacketCopiesPayload(t *testing.T) {
	src := []byte{1, 2, 3}
	p := NewPacket(PacketRFCOMMData, 5, src)
	src[0] = 0xFF
	if got := p.Payload(); got[0] != 1 {
		t.Fatalf("packet aliased caller buffer: % x", got)
	}

	out := p.Payload()
	out[1] = 0xFF
	if got := p.Payload(); got[1] != 2 {
		t.Fatalf("Payload() leaked internal buffer: % x", got)
	}
	if p.Len() != 3 || p.Channel() != 5 || p.Type() != PacketRFCOMMData {
		t.Fatalf("unexpected packet: %s", p)
	}
}

func TestPacketFrameRoundTrip(t *testing.T) {
	in := NewPacket(PacketType(0x0042), 0x0102, []byte("raw"))
	var buf bytes.Buffer
	if err := frame.WriteFrame(&buf, in.Frame(), frame.DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	f, err := frame.ReadFrame(&buf, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	out := PacketFromFrame(f)
	if out.Type() != in.Type() || out.Channel() != in.Channel() || !bytes.Equal(out.Payload(), in.Payload()) {
		t.Fatalf("packet mismatch: in=%s out=%s", in, out)
	}
}

func TestPacketTypeString(t *testing.T) {
	if PacketEvent.String() != "event" {
		t.Fatalf("unexpected name: %s", PacketEvent)
	}
	if PacketType(0x0009).String() != "type_0x0009" {
		t.Fatalf("unexpected name: %s", PacketType(9))
	}
}
