package protocol

import "errors"

var (
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
	ErrTruncated       = errors.New("protocol: truncated data")
)
