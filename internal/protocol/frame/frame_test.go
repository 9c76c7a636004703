package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestEncodeHeaderIsLittleEndian(t *testing.T) {
	got := EncodeHeader(Header{PacketType: 0x0004, Channel: 0x1234, Length: 0x0102})
	want := []byte{0x04, 0x00, 0x34, 0x12, 0x02, 0x01}
	if !bytes.Equal(got, want) {
		t.Fatalf("header bytes mismatch: got=% x want=% x", got, want)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{PacketType: 1, Channel: 0, Length: 0},
		{PacketType: 4, Channel: 0, Length: 1},
		{PacketType: 6, Channel: 0x0040, Length: 672},
		{PacketType: 7, Channel: 0xFFFF, Length: DefaultMaxPayloadBytes},
		{PacketType: 0xBEEF, Channel: 9, Length: 0xFFFF},
	}
	for _, in := range cases {
		out, err := DecodeHeader(EncodeHeader(in))
		if err != nil {
			t.Fatalf("decode %+v: %v", in, err)
		}
		if out != in {
			t.Fatalf("round trip mismatch: got=%+v want=%+v", out, in)
		}
	}
}

func TestDecodeHeaderRejectsWrongSize(t *testing.T) {
	if _, err := DecodeHeader([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short header slice")
	}
}

func TestReadWriteFrameRoundTrip(t *testing.T) {
	in := Frame{
		Header:  Header{PacketType: 7, Channel: 3},
		Payload: []byte("rfcomm-data"),
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if buf.Len() != HeaderLen+len(in.Payload) {
		t.Fatalf("unexpected encoded size: %d", buf.Len())
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Header.PacketType != 7 || out.Header.Channel != 3 || int(out.Header.Length) != len(in.Payload) {
		t.Fatalf("header mismatch: %+v", out.Header)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload mismatch: %q", out.Payload)
	}
}

func TestWriteFrameOverridesDeclaredLength(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, Frame{Header: Header{PacketType: 1, Length: 99}, Payload: []byte{1, 2}}, DefaultLimits())
	if err != nil {
		t.Fatalf("write frame: %v", err)
	}
	h, _ := DecodeHeader(buf.Bytes()[:HeaderLen])
	if h.Length != 2 {
		t.Fatalf("expected length 2, got %d", h.Length)
	}
}

func TestWriteFrameRejectsOversizeBeforeWriting(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, Frame{Header: Header{PacketType: 1}, Payload: make([]byte, 17)}, Limits{MaxPayloadBytes: 16})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no bytes written, got %d", buf.Len())
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil), DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadFrameShortHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{4, 0, 0}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameShortPayload(t *testing.T) {
	raw := append(EncodeHeader(Header{PacketType: 4, Length: 4}), 0x01, 0x02)
	_, err := ReadFrame(bytes.NewReader(raw), DefaultLimits())
	if !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}

func TestReadFrameRejectsDeclaredOversize(t *testing.T) {
	raw := EncodeHeader(Header{PacketType: 6, Length: 2001})
	_, err := ReadFrame(bytes.NewReader(raw), DefaultLimits())
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestLimitsWithDefaults(t *testing.T) {
	if got := (Limits{}).WithDefaults().MaxPayloadBytes; got != DefaultMaxPayloadBytes {
		t.Fatalf("expected default limit, got %d", got)
	}
	if got := (Limits{MaxPayloadBytes: 1 << 20}).WithDefaults().MaxPayloadBytes; got != MaxEncodableBytes {
		t.Fatalf("expected clamp to %d, got %d", MaxEncodableBytes, got)
	}
}
