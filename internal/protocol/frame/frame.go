package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	HeaderLen = 6

	// DefaultMaxPayloadBytes matches the daemon's socket buffer sizing.
	DefaultMaxPayloadBytes = 2000
	// MaxEncodableBytes is the ceiling imposed by the 16-bit length field.
	MaxEncodableBytes = 0xFFFF
)

var (
	ErrShortHeader     = errors.New("frame: short header")
	ErrShortPayload    = errors.New("frame: short payload")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Header is the fixed 6-byte wire header. All fields are little-endian.
type Header struct {
	PacketType uint16
	Channel    uint16
	Length     uint16
}

// Frame is one header plus its payload.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains frame encode/decode memory use.
type Limits struct {
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: DefaultMaxPayloadBytes}
}

// WithDefaults fills unset or out-of-range limits.
func (l Limits) WithDefaults() Limits {
	if l.MaxPayloadBytes <= 0 {
		l.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if l.MaxPayloadBytes > MaxEncodableBytes {
		l.MaxPayloadBytes = MaxEncodableBytes
	}
	return l
}

// CheckLength reports whether n bytes fit in one frame under l.
func (l Limits) CheckLength(n int) error {
	l = l.WithDefaults()
	if n < 0 {
		return fmt.Errorf("%w: negative length %d", ErrPayloadTooLarge, n)
	}
	if n > l.MaxPayloadBytes {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, n, l.MaxPayloadBytes)
	}
	return nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	putHeader(buf, h)
	return buf
}

func putHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint16(buf[0:2], h.PacketType)
	binary.LittleEndian.PutUint16(buf[2:4], h.Channel)
	binary.LittleEndian.PutUint16(buf[4:6], h.Length)
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, fmt.Errorf("frame: invalid header length: %d", len(b))
	}
	return Header{
		PacketType: binary.LittleEndian.Uint16(b[0:2]),
		Channel:    binary.LittleEndian.Uint16(b[2:4]),
		Length:     binary.LittleEndian.Uint16(b[4:6]),
	}, nil
}

// ReadFrame blocks until one complete frame is read from r.
// A clean end of stream before the first header byte returns io.EOF.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	limits = limits.WithDefaults()

	var hb [HeaderLen]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}
	h, err := DecodeHeader(hb[:])
	if err != nil {
		return Frame{}, err
	}
	if int(h.Length) > limits.MaxPayloadBytes {
		return Frame{}, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, h.Length, limits.MaxPayloadBytes)
	}

	payload := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Frame{}, ErrShortPayload
			}
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame writes header and payload with a single Write call. The length
// field is taken from the payload; oversize payloads are rejected before any
// byte is written.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	if err := limits.CheckLength(len(f.Payload)); err != nil {
		return err
	}
	buf := make([]byte, HeaderLen+len(f.Payload))
	h := f.Header
	h.Length = uint16(len(f.Payload))
	putHeader(buf, h)
	copy(buf[HeaderLen:], f.Payload)
	_, err := w.Write(buf)
	return err
}
