package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/apductl/internal/apdu"
	"github.com/danmuck/apductl/internal/appctx"
	"github.com/rs/zerolog/log"
)

var (
	ErrMalformedFrame   = errors.New("dispatch: malformed frame")
	ErrFrameTooShort    = fmt.Errorf("%w: too short", ErrMalformedFrame)
	ErrWrongClass       = fmt.Errorf("%w: wrong class", ErrMalformedFrame)
	ErrOpcodeOutOfRange = fmt.Errorf("%w: opcode out of range", ErrMalformedFrame)
	ErrUnknownOpcode    = fmt.Errorf("%w: unknown opcode", ErrMalformedFrame)
	ErrHandlerFailed    = errors.New("dispatch: handler failed")
)

// Gate validates frames and routes them through a Registry.
type Gate struct {
	class      byte
	upperBound byte
	registry   *Registry
}

func NewGate(class, upperBound byte, registry *Registry) *Gate {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Gate{class: class, upperBound: upperBound, registry: registry}
}

func (g *Gate) Class() byte { return g.class }

func (g *Gate) UpperBound() byte { return g.upperBound }

func (g *Gate) Registry() *Registry { return g.registry }

// Validate checks length, class and opcode bound in that order.
func (g *Gate) Validate(frame []byte) (apdu.Command, error) {
	if len(frame) <= apdu.HeaderLen {
		return apdu.Command{}, fmt.Errorf("%w: len=%d", ErrFrameTooShort, len(frame))
	}
	if cla := frame[apdu.OffsetClass]; cla != g.class {
		return apdu.Command{}, fmt.Errorf("%w: cla=0x%02x want=0x%02x", ErrWrongClass, cla, g.class)
	}
	if ins := frame[apdu.OffsetIns]; ins >= g.upperBound {
		return apdu.Command{}, fmt.Errorf("%w: ins=0x%02x bound=0x%02x", ErrOpcodeOutOfRange, ins, g.upperBound)
	}
	return apdu.ParseCommand(frame)
}

// Dispatch validates frame and invokes its handler with the payload.
func (g *Gate) Dispatch(ctx context.Context, app *appctx.Context, frame []byte, reply ReplyFunc) error {
	cmd, err := g.Validate(frame)
	if err != nil {
		log.Warn().Err(err).Msg("dispatch.Gate.Dispatch rejected frame")
		return err
	}
	entry, ok := g.registry.Resolve(cmd.Ins)
	if !ok {
		return fmt.Errorf("%w: ins=0x%02x", ErrUnknownOpcode, cmd.Ins)
	}
	log.Debug().
		Str("handler", entry.Name).
		Int("payload_len", len(cmd.Payload)).
		Msgf("dispatch.Gate.Dispatch ins=0x%02x", cmd.Ins)
	if err := entry.Handler.Handle(ctx, app, cmd.Payload, reply); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrHandlerFailed, entry.Name, err)
	}
	return nil
}

// RejectReason maps a gate error onto a short metric label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrFrameTooShort):
		return "too_short"
	case errors.Is(err, ErrWrongClass):
		return "wrong_class"
	case errors.Is(err, ErrOpcodeOutOfRange):
		return "opcode_out_of_range"
	case errors.Is(err, ErrUnknownOpcode):
		return "unknown_opcode"
	case errors.Is(err, ErrHandlerFailed):
		return "handler_failed"
	default:
		return "other"
	}
}
