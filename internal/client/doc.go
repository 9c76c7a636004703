// Package client owns the daemon connection lifecycle.
//
// Ownership boundary:
// - connect/disconnect/reconnect of one transport per Engine
// - the background receive loop and its epoch
// - handler delivery and retry/backoff helpers
//
// Every connection gets a fresh epoch. A receive loop only delivers while its
// captured epoch equals the engine's live epoch, so bumping the epoch is
// enough to retire it even while it is blocked in a read.
package client
