package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// LengthPrefixLen is the size of the big-endian frame length prefix.
const LengthPrefixLen = 4

var ErrShortPrefix = errors.New("transport: short length prefix")

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxFrameBytes uint32
}

// DefaultLimits fits one short APDU plus its status word.
func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 260}
}

func (l Limits) withDefaults() Limits {
	if l.MaxFrameBytes == 0 {
		return DefaultLimits()
	}
	return l
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	limits = limits.withDefaults()
	var prefix [LengthPrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortPrefix
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > limits.MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, limits.MaxFrameBytes)
	}
	frame := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, frame); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return frame, nil
}

// WriteFrame writes frame with its length prefix in a single write.
func WriteFrame(w io.Writer, frame []byte, limits Limits) error {
	limits = limits.withDefaults()
	if uint64(len(frame)) > uint64(limits.MaxFrameBytes) {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(frame), limits.MaxFrameBytes)
	}
	buf := make([]byte, LengthPrefixLen+len(frame))
	binary.BigEndian.PutUint32(buf[:LengthPrefixLen], uint32(len(frame)))
	copy(buf[LengthPrefixLen:], frame)
	_, err := w.Write(buf)
	return err
}
