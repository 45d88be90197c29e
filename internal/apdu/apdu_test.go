package apdu

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/apductl/internal/testutil/testlog"
)

func TestParseCommandSplitsHeader(t *testing.T) {
	testlog.Start(t)
	cmd, err := ParseCommand([]byte{0xE0, 0x01, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Class != 0xE0 || cmd.Ins != 0x01 {
		t.Fatalf("unexpected header: %+v", cmd)
	}
	if !bytes.Equal(cmd.Payload, []byte{0x00, 0x00, 0x00}) {
		t.Fatalf("unexpected payload: %x", cmd.Payload)
	}
}

func TestParseCommandRejectsHeaderOnly(t *testing.T) {
	testlog.Start(t)
	for _, frame := range [][]byte{nil, {0xE0}, {0xE0, 0x01}} {
		if _, err := ParseCommand(frame); !errors.Is(err, ErrShortFrame) {
			t.Fatalf("expected ErrShortFrame for %x, got %v", frame, err)
		}
	}
}

func TestParseParams(t *testing.T) {
	testlog.Start(t)
	p, err := ParseParams([]byte{0x01, 0x02, 0x03, 0xaa, 0xbb, 0xcc})
	if err != nil {
		t.Fatalf("parse params: %v", err)
	}
	if p.P1 != 0x01 || p.P2 != 0x02 || !bytes.Equal(p.Data, []byte{0xaa, 0xbb, 0xcc}) {
		t.Fatalf("unexpected params: %+v", p)
	}

	if _, err := ParseParams([]byte{0x00, 0x00}); !errors.Is(err, ErrShortParams) {
		t.Fatalf("expected ErrShortParams, got %v", err)
	}
	if _, err := ParseParams([]byte{0x00, 0x00, 0x02, 0xaa}); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestEncodeCommandRoundTrip(t *testing.T) {
	testlog.Start(t)
	frame, err := EncodeCommand(DefaultClass, 0x03, 0x00, 0x01, []byte("hi"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0xE0, 0x03, 0x00, 0x01, 0x02, 'h', 'i'}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame mismatch: got=%x want=%x", frame, want)
	}
	cmd, err := ParseCommand(frame)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, err := ParseParams(cmd.Payload)
	if err != nil {
		t.Fatalf("parse params: %v", err)
	}
	if string(p.Data) != "hi" || p.P2 != 0x01 {
		t.Fatalf("unexpected params: %+v", p)
	}

	if _, err := EncodeCommand(DefaultClass, 0x03, 0, 0, make([]byte, MaxDataLen+1)); !errors.Is(err, ErrDataTooLarge) {
		t.Fatalf("expected ErrDataTooLarge, got %v", err)
	}
}

func TestResponseAndSplit(t *testing.T) {
	testlog.Start(t)
	resp := Response([]byte{0x01, 0x02}, SWSuccess)
	if !bytes.Equal(resp, []byte{0x01, 0x02, 0x90, 0x00}) {
		t.Fatalf("unexpected response: %x", resp)
	}
	data, sw, err := SplitResponse(resp)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if sw != SWSuccess || !bytes.Equal(data, []byte{0x01, 0x02}) {
		t.Fatalf("unexpected split: data=%x sw=%s", data, sw)
	}
	if _, _, err := SplitResponse([]byte{0x90}); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
}

func TestStatusWordString(t *testing.T) {
	testlog.Start(t)
	if got := SWUserRefused.String(); got != "6985(user_refused)" {
		t.Fatalf("unexpected name: %q", got)
	}
	if got := StatusWord(0x1234).String(); got != "1234" {
		t.Fatalf("unexpected name: %q", got)
	}
}

func TestDecodeHex(t *testing.T) {
	testlog.Start(t)
	got, err := DecodeHex("e0 01:00 00\n00")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, []byte{0xE0, 0x01, 0x00, 0x00, 0x00}) {
		t.Fatalf("unexpected bytes: %x", got)
	}
	if _, err := DecodeHex("zz"); !errors.Is(err, ErrInvalidHex) {
		t.Fatalf("expected ErrInvalidHex, got %v", err)
	}
}
