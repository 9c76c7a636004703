package command

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/btlink/internal/protocol"
)

const (
	// OGFDaemon is the opcode group reserved for daemon-internal commands.
	OGFDaemon uint8 = 0x3d

	OCFGetState                  uint16 = 0x01
	OCFSetPowerMode              uint16 = 0x02
	OCFGetVersion                uint16 = 0x04
	OCFGetSystemBluetoothEnabled uint16 = 0x05

	maxParamLen = 0xFF
)

// PowerMode is the argument of SetPowerMode.
type PowerMode uint8

const (
	PowerOff PowerMode = iota
	PowerOn
	PowerSleep
)

func (m PowerMode) String() string {
	switch m {
	case PowerOff:
		return "off"
	case PowerOn:
		return "on"
	case PowerSleep:
		return "sleep"
	default:
		return fmt.Sprintf("mode_%d", uint8(m))
	}
}

// ParsePowerMode accepts the names printed by PowerMode.String.
func ParsePowerMode(raw string) (PowerMode, error) {
	switch raw {
	case "off":
		return PowerOff, nil
	case "on":
		return PowerOn, nil
	case "sleep":
		return PowerSleep, nil
	default:
		return 0, fmt.Errorf("command: unknown power mode %q", raw)
	}
}

// Opcode packs OGF (6 bits) and OCF (10 bits).
func Opcode(ogf uint8, ocf uint16) uint16 {
	return uint16(ogf)<<10 | (ocf & 0x03FF)
}

// Command is one HCI-style command: opcode followed by a length-prefixed parameter block.
type Command struct {
	Opcode uint16
	Params []byte
}

func (c Command) OGF() uint8  { return uint8(c.Opcode >> 10) }
func (c Command) OCF() uint16 { return c.Opcode & 0x03FF }

// Encode returns opcode (LE), param length, params.
func (c Command) Encode() ([]byte, error) {
	if len(c.Params) > maxParamLen {
		return nil, fmt.Errorf("%w: command params %d > %d", protocol.ErrPayloadTooLarge, len(c.Params), maxParamLen)
	}
	buf := make([]byte, 3+len(c.Params))
	binary.LittleEndian.PutUint16(buf[0:2], c.Opcode)
	buf[2] = uint8(len(c.Params))
	copy(buf[3:], c.Params)
	return buf, nil
}

// Packet wraps the encoded command in a command-typed packet on channel 0.
func (c Command) Packet() (protocol.Packet, error) {
	payload, err := c.Encode()
	if err != nil {
		return protocol.Packet{}, err
	}
	return protocol.NewPacket(protocol.PacketCommand, 0, payload), nil
}

func (c Command) String() string {
	return fmt.Sprintf("command{ogf=0x%02x ocf=0x%03x params=%d}", c.OGF(), c.OCF(), len(c.Params))
}

// Decode parses a command payload as produced by Encode.
func Decode(b []byte) (Command, error) {
	if len(b) < 3 {
		return Command{}, fmt.Errorf("%w: command header", protocol.ErrTruncated)
	}
	n := int(b[2])
	if len(b) < 3+n {
		return Command{}, fmt.Errorf("%w: command params want=%d have=%d", protocol.ErrTruncated, n, len(b)-3)
	}
	params := make([]byte, n)
	copy(params, b[3:3+n])
	return Command{Opcode: binary.LittleEndian.Uint16(b[0:2]), Params: params}, nil
}

func GetState() Command {
	return Command{Opcode: Opcode(OGFDaemon, OCFGetState)}
}

func SetPowerMode(mode PowerMode) Command {
	return Command{Opcode: Opcode(OGFDaemon, OCFSetPowerMode), Params: []byte{uint8(mode)}}
}

func GetVersion() Command {
	return Command{Opcode: Opcode(OGFDaemon, OCFGetVersion)}
}

func GetSystemBluetoothEnabled() Command {
	return Command{Opcode: Opcode(OGFDaemon, OCFGetSystemBluetoothEnabled)}
}
