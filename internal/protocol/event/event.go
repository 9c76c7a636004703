package event

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/btlink/internal/protocol"
)

const (
	CodeDisconnectionComplete  uint8 = 0x05
	CodeCommandComplete        uint8 = 0x0E
	CodeCommandStatus          uint8 = 0x0F
	CodeState                  uint8 = 0x60
	CodeConnectionCountChanged uint8 = 0x61
	CodePowerOnFailed          uint8 = 0x62
	CodeDaemonVersion          uint8 = 0x63
	CodeSystemBluetoothEnabled uint8 = 0x64
)

// Event is a decoded event payload.
type Event interface {
	Code() uint8
}

// Generic carries an event no decoder claimed.
type Generic struct {
	EventCode uint8
	Params    []byte
	Raw       []byte
}

func (e Generic) Code() uint8 { return e.EventCode }

func (e Generic) String() string {
	return fmt.Sprintf("event{code=0x%02x params=% x}", e.EventCode, e.Params)
}

// HCIState mirrors the daemon's stack state machine.
type HCIState uint8

const (
	StateOff HCIState = iota
	StateInitializing
	StateWorking
	StateHalting
	StateSleeping
	StateFallingAsleep
)

func (s HCIState) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateInitializing:
		return "initializing"
	case StateWorking:
		return "working"
	case StateHalting:
		return "halting"
	case StateSleeping:
		return "sleeping"
	case StateFallingAsleep:
		return "falling_asleep"
	default:
		return fmt.Sprintf("state_%d", uint8(s))
	}
}

type State struct {
	State HCIState
}

func (State) Code() uint8 { return CodeState }

type ConnectionCountChanged struct {
	Count uint8
}

func (ConnectionCountChanged) Code() uint8 { return CodeConnectionCountChanged }

type PowerOnFailed struct{}

func (PowerOnFailed) Code() uint8 { return CodePowerOnFailed }

type DaemonVersion struct {
	Major    uint8
	Minor    uint8
	Revision uint16
}

func (DaemonVersion) Code() uint8 { return CodeDaemonVersion }

func (v DaemonVersion) String() string {
	return fmt.Sprintf("%d.%d (rev %d)", v.Major, v.Minor, v.Revision)
}

type SystemBluetoothEnabled struct {
	Enabled bool
}

func (SystemBluetoothEnabled) Code() uint8 { return CodeSystemBluetoothEnabled }

type CommandComplete struct {
	NumPackets   uint8
	Opcode       uint16
	ReturnParams []byte
}

func (CommandComplete) Code() uint8 { return CodeCommandComplete }

type CommandStatus struct {
	Status     uint8
	NumPackets uint8
	Opcode     uint16
}

func (CommandStatus) Code() uint8 { return CodeCommandStatus }

type DisconnectionComplete struct {
	Status uint8
	Handle uint16
	Reason uint8
}

func (DisconnectionComplete) Code() uint8 { return CodeDisconnectionComplete }

func need(params []byte, n int, name string) error {
	if len(params) < n {
		return fmt.Errorf("%w: %s want=%d have=%d", protocol.ErrTruncated, name, n, len(params))
	}
	return nil
}

func decodeState(params []byte) (Event, error) {
	if err := need(params, 1, "state"); err != nil {
		return nil, err
	}
	return State{State: HCIState(params[0])}, nil
}

func decodeConnectionCountChanged(params []byte) (Event, error) {
	if err := need(params, 1, "connection_count_changed"); err != nil {
		return nil, err
	}
	return ConnectionCountChanged{Count: params[0]}, nil
}

func decodePowerOnFailed([]byte) (Event, error) {
	return PowerOnFailed{}, nil
}

func decodeDaemonVersion(params []byte) (Event, error) {
	if err := need(params, 4, "daemon_version"); err != nil {
		return nil, err
	}
	return DaemonVersion{
		Major:    params[0],
		Minor:    params[1],
		Revision: binary.LittleEndian.Uint16(params[2:4]),
	}, nil
}

func decodeSystemBluetoothEnabled(params []byte) (Event, error) {
	if err := need(params, 1, "system_bluetooth_enabled"); err != nil {
		return nil, err
	}
	return SystemBluetoothEnabled{Enabled: params[0] != 0}, nil
}

func decodeCommandComplete(params []byte) (Event, error) {
	if err := need(params, 3, "command_complete"); err != nil {
		return nil, err
	}
	ret := make([]byte, len(params)-3)
	copy(ret, params[3:])
	return CommandComplete{
		NumPackets:   params[0],
		Opcode:       binary.LittleEndian.Uint16(params[1:3]),
		ReturnParams: ret,
	}, nil
}

func decodeCommandStatus(params []byte) (Event, error) {
	if err := need(params, 4, "command_status"); err != nil {
		return nil, err
	}
	return CommandStatus{
		Status:     params[0],
		NumPackets: params[1],
		Opcode:     binary.LittleEndian.Uint16(params[2:4]),
	}, nil
}

func decodeDisconnectionComplete(params []byte) (Event, error) {
	if err := need(params, 4, "disconnection_complete"); err != nil {
		return nil, err
	}
	return DisconnectionComplete{
		Status: params[0],
		Handle: binary.LittleEndian.Uint16(params[1:3]) & 0x0FFF,
		Reason: params[3],
	}, nil
}
