// Package protocol owns the daemon wire contract.
//
// Ownership boundary:
// - packet model and packet type tags
// - frame/header primitives (frame)
// - daemon command payloads (command)
// - event payload decoding (event)
package protocol
