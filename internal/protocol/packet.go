package protocol

import (
	"fmt"

	"github.com/danmuck/btlink/internal/protocol/frame"
)

// PacketType is the 16-bit type tag carried in every frame header.
type PacketType uint16

const (
	PacketCommand    PacketType = 0x01
	PacketEvent      PacketType = 0x04
	PacketL2CAPData  PacketType = 0x06
	PacketRFCOMMData PacketType = 0x07
)

func (t PacketType) String() string {
	switch t {
	case PacketCommand:
		return "command"
	case PacketEvent:
		return "event"
	case PacketL2CAPData:
		return "l2cap_data"
	case PacketRFCOMMData:
		return "rfcomm_data"
	default:
		return fmt.Sprintf("type_0x%04x", uint16(t))
	}
}

// Packet is an immutable frame value. It owns a private copy of its payload.
type Packet struct {
	typ     PacketType
	channel uint16
	payload []byte
}

// NewPacket copies payload so later mutation by the caller cannot reach the packet.
func NewPacket(typ PacketType, channel uint16, payload []byte) Packet {
	var p []byte
	if len(payload) > 0 {
		p = make([]byte, len(payload))
		copy(p, payload)
	}
	return Packet{typ: typ, channel: channel, payload: p}
}

// PacketFromFrame takes ownership of f.Payload; callers must not reuse it.
func PacketFromFrame(f frame.Frame) Packet {
	return Packet{
		typ:     PacketType(f.Header.PacketType),
		channel: f.Header.Channel,
		payload: f.Payload,
	}
}

func (p Packet) Type() PacketType { return p.typ }
func (p Packet) Channel() uint16  { return p.channel }
func (p Packet) Len() int         { return len(p.payload) }

// Payload returns a copy of the payload bytes.
func (p Packet) Payload() []byte {
	out := make([]byte, len(p.payload))
	copy(out, p.payload)
	return out
}

// Frame returns the wire form of p. The returned payload aliases p and must
// only be handed to a writer.
func (p Packet) Frame() frame.Frame {
	return frame.Frame{
		Header: frame.Header{
			PacketType: uint16(p.typ),
			Channel:    p.channel,
			Length:     uint16(len(p.payload)),
		},
		Payload: p.payload,
	}
}

func (p Packet) String() string {
	return fmt.Sprintf("packet{type=%s channel=0x%04x len=%d}", p.typ, p.channel, len(p.payload))
}
