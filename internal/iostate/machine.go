// Package iostate owns the request/response pairing on the single channel.
//
// Transitions:
//
//	            Ready          Received              WaitingUser
//	Recv()      -> Received    async + -> WaitingUser  violation, -> Ready
//	Send(buf)   violation      stage, -> Ready         transmit, -> Ready
//
// A reply staged from Received is transmitted by the next Recv, paired with
// the receive of the following command. A reply sent from WaitingUser is
// transmitted immediately and completes the deferred exchange.
package iostate

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/apductl/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrProtocolViolation = errors.New("iostate: protocol violation")
	ErrNoExchanger       = errors.New("iostate: no exchanger attached")
	ErrReplyTooLarge     = errors.New("iostate: reply exceeds frame limit")
)

type State uint8

const (
	Ready State = iota
	Received
	WaitingUser
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Received:
		return "received"
	case WaitingUser:
		return "waiting_user"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// TransitionFunc observes state changes. op is "recv" or "send".
type TransitionFunc func(op string, from, to State)

// Machine is not safe for concurrent use; it belongs to the supervisor
// goroutine.
type Machine struct {
	ex      transport.Exchanger
	state   State
	pending []byte
	current []byte
	observe TransitionFunc
	// maxReply bounds Send buffers; zero disables the check.
	maxReply int
}

func NewMachine(ex transport.Exchanger) *Machine {
	return &Machine{ex: ex, state: Ready}
}

// Attach swaps the exchanger after a channel bring-up and resets the machine.
func (m *Machine) Attach(ex transport.Exchanger) {
	m.ex = ex
	m.Reset()
}

// Reset returns to Ready with no pending output.
func (m *Machine) Reset() {
	m.state = Ready
	m.pending = nil
	m.current = nil
}

// SetMaxReply rejects replies longer than n bytes in Send. A non-positive n
// disables the check.
func (m *Machine) SetMaxReply(n int) {
	m.maxReply = n
}

// OnTransition installs fn as the transition observer.
func (m *Machine) OnTransition(fn TransitionFunc) {
	m.observe = fn
}

func (m *Machine) State() State {
	return m.state
}

// Pending returns a copy of the staged output, or nil when nothing is staged.
func (m *Machine) Pending() []byte {
	if m.pending == nil {
		return nil
	}
	return append([]byte{}, m.pending...)
}

// Recv advances the receive side. From Ready it transmits any staged reply
// and blocks for the next frame. From Received it defers the reply to a
// user-approval step and returns the frame still being processed.
func (m *Machine) Recv(ctx context.Context) ([]byte, error) {
	if m.ex == nil {
		return nil, ErrNoExchanger
	}
	switch m.state {
	case Ready:
		frame, err := m.ex.Exchange(ctx, transport.ModeReceive, m.pending)
		m.pending = nil
		if err != nil {
			m.current = nil
			return nil, fmt.Errorf("iostate: recv: %w", err)
		}
		m.current = frame
		m.transition("recv", Received)
		return frame, nil
	case Received:
		if _, err := m.ex.Exchange(ctx, transport.ModeAsyncReply, m.pending); err != nil {
			m.Reset()
			return nil, fmt.Errorf("iostate: recv async: %w", err)
		}
		m.pending = nil
		m.transition("recv", WaitingUser)
		return m.current, nil
	case WaitingUser:
		m.Reset()
		log.Warn().Str("state", WaitingUser.String()).Msg("iostate.Machine.Recv unexpected call")
		return nil, fmt.Errorf("%w: recv while %s", ErrProtocolViolation, WaitingUser)
	default:
		state := m.state
		m.Reset()
		return nil, fmt.Errorf("%w: recv in unknown %s", ErrProtocolViolation, state)
	}
}

// Send advances the reply side. buf is copied. An oversized reply drops the
// outstanding request and leaves the machine Ready.
func (m *Machine) Send(ctx context.Context, buf []byte) error {
	if m.maxReply > 0 && len(buf) > m.maxReply && (m.state == Received || m.state == WaitingUser) {
		state := m.state
		m.Reset()
		log.Warn().Str("state", state.String()).Int("len", len(buf)).Int("max", m.maxReply).Msg("iostate.Machine.Send reply dropped")
		return fmt.Errorf("%w: %w: %d > %d", ErrReplyTooLarge, transport.ErrFrameTooLarge, len(buf), m.maxReply)
	}
	switch m.state {
	case Ready:
		log.Warn().Str("state", Ready.String()).Msg("iostate.Machine.Send unexpected call")
		return fmt.Errorf("%w: send while %s", ErrProtocolViolation, Ready)
	case Received:
		m.pending = append([]byte{}, buf...)
		m.current = nil
		m.transition("send", Ready)
		return nil
	case WaitingUser:
		if m.ex == nil {
			m.Reset()
			return ErrNoExchanger
		}
		_, err := m.ex.Exchange(ctx, transport.ModeReturnAfterTx, append([]byte{}, buf...))
		m.pending = nil
		m.current = nil
		m.transition("send", Ready)
		if err != nil {
			return fmt.Errorf("iostate: send final: %w", err)
		}
		return nil
	default:
		state := m.state
		m.Reset()
		return fmt.Errorf("%w: send in unknown %s", ErrProtocolViolation, state)
	}
}

// Replier binds Send to ctx for handlers.
func (m *Machine) Replier(ctx context.Context) func([]byte) error {
	return func(buf []byte) error {
		return m.Send(ctx, buf)
	}
}

func (m *Machine) transition(op string, to State) {
	from := m.state
	m.state = to
	log.Debug().Str("op", op).Str("from", from.String()).Str("to", to.String()).Msg("iostate.Machine transition")
	if m.observe != nil {
		m.observe(op, from, to)
	}
}
