// Package dispatch classifies inbound packets into handler-facing messages.
package dispatch

import (
	"fmt"

	"github.com/danmuck/btlink/internal/protocol"
	"github.com/danmuck/btlink/internal/protocol/event"
	"github.com/rs/zerolog/log"
)

// Message is what a handler receives. It is one of event.Event, DataPacket,
// DaemonDisconnected, or a raw protocol.Packet for unrecognized types.
type Message any

// DataPacket is an L2CAP or RFCOMM payload addressed to a channel.
type DataPacket struct {
	Type    protocol.PacketType
	Channel uint16
	Payload []byte
}

func (d DataPacket) String() string {
	return fmt.Sprintf("data{type=%s channel=0x%04x len=%d}", d.Type, d.Channel, len(d.Payload))
}

// DaemonDisconnected is synthesized when the daemon closes the stream.
type DaemonDisconnected struct {
	Epoch uint64
	Err   error
}

func (d DaemonDisconnected) String() string {
	return fmt.Sprintf("daemon_disconnected{epoch=%d err=%v}", d.Epoch, d.Err)
}

// EventDecoder turns an event payload into a typed event. Implementations
// return a non-nil Event even when err != nil.
type EventDecoder interface {
	Decode(payload []byte) (event.Event, error)
}

type Dispatcher struct {
	events EventDecoder
}

// New returns a dispatcher using events, or event.DefaultRegistry when nil.
func New(events EventDecoder) *Dispatcher {
	if events == nil {
		events = event.DefaultRegistry()
	}
	return &Dispatcher{events: events}
}

// Dispatch classifies p. Every packet type maps to exactly one message.
func (d *Dispatcher) Dispatch(p protocol.Packet) Message {
	switch p.Type() {
	case protocol.PacketEvent:
		ev, err := d.events.Decode(p.Payload())
		if err != nil {
			log.Debug().Err(err).Msg("dispatch: event decode fell back to generic")
		}
		if ev == nil {
			ev = event.NewGeneric(p.Payload())
		}
		return ev
	case protocol.PacketL2CAPData, protocol.PacketRFCOMMData:
		return DataPacket{Type: p.Type(), Channel: p.Channel(), Payload: p.Payload()}
	default:
		return p
	}
}
