package apdu

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	OffsetClass = 0
	OffsetIns   = 1
	OffsetData  = 2

	// HeaderLen is the fixed header size; a valid frame is strictly longer.
	HeaderLen = OffsetData

	DefaultClass byte = 0xE0

	// MaxDataLen bounds the data field addressed by a single Lc byte.
	MaxDataLen = 0xFF
)

var (
	ErrShortFrame     = errors.New("apdu: frame shorter than header")
	ErrShortParams    = errors.New("apdu: payload shorter than p1 p2 lc")
	ErrLengthMismatch = errors.New("apdu: lc does not match data length")
	ErrDataTooLarge   = errors.New("apdu: data too large")
	ErrInvalidHex     = errors.New("apdu: invalid hex")
)

// Command is a parsed view over a received frame. Payload aliases the frame.
type Command struct {
	Class   byte
	Ins     byte
	Payload []byte
}

// ParseCommand splits frame at the fixed header offsets.
func ParseCommand(frame []byte) (Command, error) {
	if len(frame) <= HeaderLen {
		return Command{}, fmt.Errorf("%w: len=%d", ErrShortFrame, len(frame))
	}
	return Command{
		Class:   frame[OffsetClass],
		Ins:     frame[OffsetIns],
		Payload: frame[OffsetData:],
	}, nil
}

// EncodeCommand builds CLA INS P1 P2 Lc data.
func EncodeCommand(class, ins, p1, p2 byte, data []byte) ([]byte, error) {
	if len(data) > MaxDataLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, len(data))
	}
	out := make([]byte, 0, HeaderLen+3+len(data))
	out = append(out, class, ins, p1, p2, byte(len(data)))
	out = append(out, data...)
	return out, nil
}

// DecodeHex parses a hex string, ignoring whitespace and ':' separators.
func DecodeHex(raw string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, raw)
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	out, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return out, nil
}
