package apdu

import (
	"encoding/binary"
	"fmt"
)

// StatusWord is the two-byte trailer of every response.
type StatusWord uint16

const (
	SWSuccess                StatusWord = 0x9000
	SWCheckingFail           StatusWord = 0x6001
	SWWrongLength            StatusWord = 0x6700
	SWUserRefused            StatusWord = 0x6985
	SWConditionsNotSatisfied StatusWord = 0x6986
	SWWrongParams            StatusWord = 0x6B00
)

var statusNames = map[StatusWord]string{
	SWSuccess:                "success",
	SWCheckingFail:           "checking_fail",
	SWWrongLength:            "wrong_length",
	SWUserRefused:            "user_refused",
	SWConditionsNotSatisfied: "conditions_not_satisfied",
	SWWrongParams:            "wrong_params",
}

func (sw StatusWord) String() string {
	if name, ok := statusNames[sw]; ok {
		return fmt.Sprintf("%04X(%s)", uint16(sw), name)
	}
	return fmt.Sprintf("%04X", uint16(sw))
}

// Response appends sw to a copy of data.
func Response(data []byte, sw StatusWord) []byte {
	out := make([]byte, len(data)+2)
	copy(out, data)
	binary.BigEndian.PutUint16(out[len(data):], uint16(sw))
	return out
}

// SplitResponse separates the data and status word of a response.
func SplitResponse(resp []byte) ([]byte, StatusWord, error) {
	if len(resp) < 2 {
		return nil, 0, fmt.Errorf("%w: response len=%d", ErrShortFrame, len(resp))
	}
	n := len(resp) - 2
	return resp[:n], StatusWord(binary.BigEndian.Uint16(resp[n:])), nil
}
