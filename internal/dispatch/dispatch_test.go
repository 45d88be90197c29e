package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/apductl/internal/apdu"
	"github.com/danmuck/apductl/internal/appctx"
	"github.com/danmuck/apductl/internal/testutil/testlog"
)

type recordingHandler struct {
	calls    int
	payloads [][]byte
	reply    []byte
	err      error
}

func (h *recordingHandler) Handle(_ context.Context, _ *appctx.Context, payload []byte, reply ReplyFunc) error {
	h.calls++
	h.payloads = append(h.payloads, append([]byte{}, payload...))
	if h.err != nil {
		return h.err
	}
	if h.reply != nil {
		return reply(h.reply)
	}
	return nil
}

func newTestGate(t *testing.T, h Handler) *Gate {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(0x01, "get_version", h))
	return NewGate(apdu.DefaultClass, 0x05, reg)
}

func TestDispatchSynchronousHandler(t *testing.T) {
	testlog.Start(t)
	h := &recordingHandler{reply: []byte{0x01, 0x00, 0x00, 0x90, 0x00}}
	g := newTestGate(t, h)

	var out [][]byte
	reply := func(resp []byte) error {
		out = append(out, resp)
		return nil
	}
	err := g.Dispatch(context.Background(), &appctx.Context{}, []byte{0xE0, 0x01, 0xAA, 0xBB}, reply)
	require.NoError(t, err)
	require.Equal(t, 1, h.calls)
	assert.Equal(t, []byte{0xAA, 0xBB}, h.payloads[0])
	require.Len(t, out, 1)
	assert.Equal(t, h.reply, out[0])
}

func TestDispatchRejectsShortFrames(t *testing.T) {
	testlog.Start(t)
	h := &recordingHandler{}
	g := newTestGate(t, h)
	for _, frame := range [][]byte{nil, {0xE0}, {0xE0, 0x01}} {
		err := g.Dispatch(context.Background(), &appctx.Context{}, frame, nil)
		require.ErrorIs(t, err, ErrFrameTooShort)
		require.ErrorIs(t, err, ErrMalformedFrame)
	}
	assert.Zero(t, h.calls)
}

func TestDispatchRejectsWrongClassRegardlessOfContent(t *testing.T) {
	testlog.Start(t)
	h := &recordingHandler{}
	g := newTestGate(t, h)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		frame := make([]byte, 3+rng.Intn(16))
		rng.Read(frame)
		if frame[0] == apdu.DefaultClass {
			frame[0] = 0xE1
		}
		err := g.Dispatch(context.Background(), &appctx.Context{}, frame, nil)
		require.ErrorIs(t, err, ErrWrongClass, "frame=%x", frame)
	}
	assert.Zero(t, h.calls)
}

func TestDispatchRejectsOpcodesAtOrAboveBound(t *testing.T) {
	testlog.Start(t)
	h := &recordingHandler{}
	reg := NewRegistry()
	g := NewGate(apdu.DefaultClass, 0x05, reg)
	for ins := 0x05; ins <= 0xFF; ins++ {
		frame := []byte{0xE0, byte(ins), 0x00, 0x00, 0x00}
		err := g.Dispatch(context.Background(), &appctx.Context{}, frame, nil)
		require.ErrorIs(t, err, ErrOpcodeOutOfRange, "ins=0x%02x", ins)
	}
	assert.Zero(t, h.calls)
}

func TestDispatchUnknownOpcodeBelowBound(t *testing.T) {
	testlog.Start(t)
	h := &recordingHandler{}
	g := newTestGate(t, h)
	err := g.Dispatch(context.Background(), &appctx.Context{}, []byte{0xE0, 0x02, 0x00}, nil)
	require.ErrorIs(t, err, ErrUnknownOpcode)
	require.ErrorIs(t, err, ErrMalformedFrame)
	assert.Zero(t, h.calls)
}

func TestDispatchHandlerFailure(t *testing.T) {
	testlog.Start(t)
	cause := errors.New("boom")
	g := newTestGate(t, &recordingHandler{err: cause})
	err := g.Dispatch(context.Background(), &appctx.Context{}, []byte{0xE0, 0x01, 0x00}, nil)
	require.ErrorIs(t, err, ErrHandlerFailed)
	require.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrMalformedFrame)
}

func TestRegistryRegisterAndList(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	h := &recordingHandler{}
	require.NoError(t, reg.Register(0x03, "set_partner_key", h))
	require.NoError(t, reg.Register(0x01, "get_version", h))
	require.ErrorIs(t, reg.Register(0x01, "again", h), ErrHandlerExists)
	require.ErrorIs(t, reg.Register(0x02, "Bad-Name", h), ErrInvalidName)
	require.ErrorIs(t, reg.Register(0x02, "_lead", h), ErrInvalidName)
	require.ErrorIs(t, reg.Register(0x02, "nil", nil), ErrHandlerNil)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, byte(0x01), list[0].Ins)
	assert.Equal(t, "set_partner_key", list[1].Name)

	e, ok := reg.Resolve(0x03)
	require.True(t, ok)
	assert.Equal(t, "set_partner_key", e.Name)
	_, ok = reg.Resolve(0x09)
	assert.False(t, ok)
}

func TestHandlerFuncAdapter(t *testing.T) {
	testlog.Start(t)
	called := false
	var h Handler = HandlerFunc(func(context.Context, *appctx.Context, []byte, ReplyFunc) error {
		called = true
		return nil
	})
	require.NoError(t, h.Handle(context.Background(), &appctx.Context{}, nil, nil))
	assert.True(t, called)
}

func TestRejectReason(t *testing.T) {
	g := NewGate(apdu.DefaultClass, 0x05, nil)
	_, err := g.Validate([]byte{0xE1, 0x01, 0x00})
	assert.Equal(t, "wrong_class", RejectReason(err))
	_, err = g.Validate([]byte{0xE0, 0x09, 0x00})
	assert.Equal(t, "opcode_out_of_range", RejectReason(err))
	_, err = g.Validate([]byte{0xE0})
	assert.Equal(t, "too_short", RejectReason(err))
	assert.Equal(t, "other", RejectReason(errors.New("x")))
}
