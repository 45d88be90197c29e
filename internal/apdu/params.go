package apdu

import "fmt"

// Params is the P1 P2 Lc data layout handlers read from a payload.
type Params struct {
	P1   byte
	P2   byte
	Data []byte
}

// ParseParams reads P1, P2 and Lc from payload and checks Lc against the
// remaining bytes. Data aliases payload.
func ParseParams(payload []byte) (Params, error) {
	if len(payload) < 3 {
		return Params{}, fmt.Errorf("%w: len=%d", ErrShortParams, len(payload))
	}
	lc := int(payload[2])
	data := payload[3:]
	if lc != len(data) {
		return Params{}, fmt.Errorf("%w: lc=%d data=%d", ErrLengthMismatch, lc, len(data))
	}
	return Params{P1: payload[0], P2: payload[1], Data: data}, nil
}
