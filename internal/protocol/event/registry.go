package event

import (
	"fmt"
	"sync"
)

// DecodeFunc decodes the parameter block of one event code.
type DecodeFunc func(params []byte) (Event, error)

// Registry maps event codes to decoders. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	decoders map[uint8]DecodeFunc
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[uint8]DecodeFunc)}
}

// DefaultRegistry returns a registry preloaded with the daemon and core HCI decoders.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(CodeDisconnectionComplete, decodeDisconnectionComplete)
	r.Register(CodeCommandComplete, decodeCommandComplete)
	r.Register(CodeCommandStatus, decodeCommandStatus)
	r.Register(CodeState, decodeState)
	r.Register(CodeConnectionCountChanged, decodeConnectionCountChanged)
	r.Register(CodePowerOnFailed, decodePowerOnFailed)
	r.Register(CodeDaemonVersion, decodeDaemonVersion)
	r.Register(CodeSystemBluetoothEnabled, decodeSystemBluetoothEnabled)
	return r
}

// Register installs fn for code, replacing any previous decoder. A nil fn removes it.
func (r *Registry) Register(code uint8, fn DecodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.decoders, code)
		return
	}
	r.decoders[code] = fn
}

func (r *Registry) lookup(code uint8) (DecodeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.decoders[code]
	return fn, ok
}

// Decode parses an event payload (code, param length, params). It always
// returns a non-nil Event: Generic when no decoder matches or decoding
// fails. The error reports the decode failure, if any.
func (r *Registry) Decode(payload []byte) (Event, error) {
	g := NewGeneric(payload)
	fn, ok := r.lookup(g.EventCode)
	if !ok || len(payload) == 0 {
		return g, nil
	}
	ev, err := fn(g.Params)
	if err != nil {
		return g, fmt.Errorf("event: decode code=0x%02x: %w", g.EventCode, err)
	}
	return ev, nil
}

// NewGeneric splits payload into code and params, clamping params to the
// declared length. Raw keeps a copy of the whole payload.
func NewGeneric(payload []byte) Generic {
	raw := make([]byte, len(payload))
	copy(raw, payload)
	g := Generic{Raw: raw}
	if len(raw) == 0 {
		return g
	}
	g.EventCode = raw[0]
	if len(raw) < 2 {
		return g
	}
	params := raw[2:]
	if declared := int(raw[1]); declared < len(params) {
		params = params[:declared]
	}
	g.Params = params
	return g
}
