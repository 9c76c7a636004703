package main

import (
	"fmt"

	"github.com/danmuck/btlink/internal/dispatch"
	"github.com/danmuck/btlink/internal/protocol"
	"github.com/danmuck/btlink/internal/protocol/event"
)

func formatMessage(msg dispatch.Message) string {
	switch m := msg.(type) {
	case event.State:
		return fmt.Sprintf("event state=%s", m.State)
	case event.DaemonVersion:
		return fmt.Sprintf("event daemon_version=%s", m)
	case event.ConnectionCountChanged:
		return fmt.Sprintf("event connections=%d", m.Count)
	case event.PowerOnFailed:
		return "event power_on_failed"
	case event.SystemBluetoothEnabled:
		return fmt.Sprintf("event system_bluetooth_enabled=%t", m.Enabled)
	case event.CommandComplete:
		return fmt.Sprintf("event command_complete opcode=0x%04x params=% x", m.Opcode, m.ReturnParams)
	case event.CommandStatus:
		return fmt.Sprintf("event command_status opcode=0x%04x status=0x%02x", m.Opcode, m.Status)
	case event.DisconnectionComplete:
		return fmt.Sprintf("event disconnection_complete handle=0x%04x reason=0x%02x", m.Handle, m.Reason)
	case event.Generic:
		return fmt.Sprintf("event %s", m)
	case dispatch.DataPacket:
		return m.String()
	case dispatch.DaemonDisconnected:
		return m.String()
	case protocol.Packet:
		return m.String()
	default:
		return fmt.Sprintf("%T %v", msg, msg)
	}
}
