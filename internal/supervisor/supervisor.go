// Package supervisor runs the application lifecycle: cold boot, channel
// bring-up, the receive/dispatch main cycle, and recovery from transport
// resets and inner faults.
//
// Everything that touches the state machine, the gate or the application
// context runs on the goroutine that called Run. UX sources only post
// callbacks onto the event queue.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/apductl/internal/apdu"
	"github.com/danmuck/apductl/internal/appctx"
	"github.com/danmuck/apductl/internal/dispatch"
	"github.com/danmuck/apductl/internal/iostate"
	"github.com/danmuck/apductl/internal/observability"
	"github.com/danmuck/apductl/internal/transport"
	"github.com/danmuck/apductl/internal/ux"
)

var (
	ErrNilChannel           = errors.New("supervisor: channel is nil")
	ErrNilRegistry          = errors.New("supervisor: registry is nil")
	ErrNilDisplay           = errors.New("supervisor: display is nil")
	ErrResetBudgetExhausted = errors.New("supervisor: reset budget exhausted")
)

// Config configures a Supervisor.
type Config struct {
	Class           byte
	UpperBound      byte
	VerificationKey []byte
	// MaxFrame bounds handler replies. Zero leaves the check to the channel.
	MaxFrame        uint32
	// MaxResets bounds consecutive resets without a dispatched frame. Zero
	// means unlimited.
	MaxResets       int
	Backoff         BackoffConfig
	// OnTransition observes state machine transitions on the loop
	// goroutine.
	OnTransition    iostate.TransitionFunc
}

func DefaultConfig() Config {
	return Config{
		Class:      apdu.DefaultClass,
		UpperBound: 0x05,
		Backoff:    DefaultBackoffConfig(),
	}
}

// Supervisor owns the state machine, the gate and the application context.
type Supervisor struct {
	cfg     Config
	channel transport.Channel
	gate    *dispatch.Gate
	display ux.Display
	queue   *ux.Queue
	machine *iostate.Machine
	app     appctx.Context
	ex      transport.Exchanger
	rng     *rand.Rand
	sleep   func(ctx context.Context, d time.Duration) error

	booted      bool
	consecutive int

	mu     sync.Mutex
	status Status
}

// New wires a supervisor. The registry should already hold the handler set.
func New(cfg Config, channel transport.Channel, registry *dispatch.Registry, display ux.Display, queue *ux.Queue) (*Supervisor, error) {
	if channel == nil {
		return nil, ErrNilChannel
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if display == nil {
		return nil, ErrNilDisplay
	}
	if queue == nil {
		queue = ux.NewQueue(0)
	}
	s := &Supervisor{
		cfg:     cfg,
		channel: channel,
		gate:    dispatch.NewGate(cfg.Class, cfg.UpperBound, registry),
		display: display,
		queue:   queue,
		machine: iostate.NewMachine(nil),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   sleepContext,
	}
	s.machine.SetMaxReply(int(cfg.MaxFrame))
	s.status.IOState = iostate.Ready.String()
	s.status.Mode = appctx.ModeInitial.String()
	s.machine.OnTransition(func(op string, from, to iostate.State) {
		s.update(func(st *Status) { st.IOState = to.String() })
		if cfg.OnTransition != nil {
			cfg.OnTransition(op, from, to)
		}
	})
	return s, nil
}

// Queue is the event queue UX sources post onto.
func (s *Supervisor) Queue() *ux.Queue {
	return s.queue
}

// Boot performs cold-boot initialization once.
func (s *Supervisor) Boot() error {
	if s.booted {
		return nil
	}
	if err := appctx.Init(&s.app, s.cfg.VerificationKey); err != nil {
		return err
	}
	s.booted = true
	fp := s.app.KeyFingerprint()
	s.update(func(st *Status) {
		st.KeyFingerprint = fp
		st.BootedAt = time.Now()
	})
	log.Info().Str("key", fp).Msg("supervisor.Supervisor.Boot")
	return nil
}

// BringUp (re)opens the channel and attaches the state machine. Calling it
// again leaves the machine Ready with no pending output.
func (s *Supervisor) BringUp(ctx context.Context) error {
	if s.ex != nil {
		s.closeChannel()
	}
	ex, err := s.channel.Open(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: bring-up: %w", err)
	}
	s.ex = ex
	s.machine.Attach(ex)
	session := uuid.NewString()
	s.update(func(st *Status) {
		st.SessionID = session
		st.IOState = iostate.Ready.String()
	})
	log.Info().Str("session", session).Msg("supervisor.Supervisor.BringUp channel open")
	return nil
}

// Run blocks until ctx is cancelled or an unrecoverable error occurs. It
// returns nil on cancellation.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Boot(); err != nil {
		return err
	}
	defer s.closeChannel()

	for {
		s.resetUX()
		err := s.BringUp(ctx)
		if err == nil {
			err = s.serve(ctx)
		}
		if ctx.Err() != nil {
			log.Info().Msg("supervisor.Supervisor.Run shutdown")
			return nil
		}
		if !isReset(err) {
			log.Error().Err(err).Msg("supervisor.Supervisor.Run stopped")
			return err
		}
		s.closeChannel()
		if err := s.recoverReset(ctx, err); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// serve runs main cycles until one fails with something other than an
// inner fault.
func (s *Supervisor) serve(ctx context.Context) error {
	for {
		err := s.mainCycle(ctx)
		if ctx.Err() != nil || isReset(err) || !isInnerFault(err) {
			return err
		}
		reason := faultReason(err)
		observability.RecordInnerFault(reason)
		s.update(func(st *Status) { st.InnerFaults++ })
		log.Warn().Err(err).Str("reason", reason).Msg("supervisor.Supervisor.serve restarting main cycle")
		s.resetUX()
	}
}

func (s *Supervisor) mainCycle(ctx context.Context) error {
	s.app.ResetFlow()
	s.display.Idle()
	s.machine.Reset()
	s.syncMode()
	reply := s.machine.Replier(ctx)

	for {
		frame, err := s.machine.Recv(ctx)
		if err != nil {
			return err
		}
		if s.machine.State() == iostate.WaitingUser {
			if err := s.awaitUser(ctx); err != nil {
				return err
			}
			s.syncMode()
			continue
		}
		if err := s.dispatch(ctx, frame, reply); err != nil {
			return err
		}
		if s.app.Idle() {
			s.display.Idle()
		}
	}
}

func (s *Supervisor) dispatch(ctx context.Context, frame []byte, reply dispatch.ReplyFunc) error {
	start := time.Now()
	err := s.gate.Dispatch(ctx, &s.app, frame, reply)
	s.update(func(st *Status) { st.Frames++ })
	s.syncMode()
	if err != nil {
		name := ""
		if errors.Is(err, dispatch.ErrHandlerFailed) {
			name = s.handlerName(frame)
		}
		observability.RecordFrame(name, dispatch.RejectReason(err), 0)
		return err
	}
	observability.RecordFrame(s.handlerName(frame), "ok", time.Since(start))
	s.consecutive = 0
	return nil
}

// awaitUser is the suspension point of a two-phase reply. It runs queued
// UX callbacks until one of them produces the final reply.
func (s *Supervisor) awaitUser(ctx context.Context) error {
	start := time.Now()
	defer func() { observability.RecordUserWait(time.Since(start)) }()

	var resets <-chan struct{}
	if rn, ok := s.ex.(transport.ResetNotifier); ok {
		resets = rn.Resets()
	}
	s.update(func(st *Status) { st.WaitingUser = true })
	defer s.update(func(st *Status) { st.WaitingUser = false })

	for s.machine.State() == iostate.WaitingUser {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resets:
			return fmt.Errorf("supervisor: await user: %w", transport.ErrReset)
		case ev := <-s.queue.Events():
			if err := s.queue.Run(ev); err != nil {
				return fmt.Errorf("%w: ux callback: %w", dispatch.ErrHandlerFailed, err)
			}
		}
	}
	return nil
}

func (s *Supervisor) recoverReset(ctx context.Context, cause error) error {
	s.consecutive++
	observability.RecordReset()
	s.update(func(st *Status) { st.Resets++ })
	if s.cfg.MaxResets > 0 && s.consecutive > s.cfg.MaxResets {
		return fmt.Errorf("%w: %d consecutive: %w", ErrResetBudgetExhausted, s.consecutive-1, cause)
	}
	delay := NextBackoffDelay(s.cfg.Backoff, s.consecutive, s.rng)
	log.Warn().Err(cause).Int("attempt", s.consecutive).Dur("delay", delay).Msg("supervisor.Supervisor.Run transport reset")
	return s.sleep(ctx, delay)
}

func (s *Supervisor) resetUX() {
	s.display.Reset()
	s.queue.Reset()
}

func (s *Supervisor) closeChannel() {
	if s.ex == nil {
		return
	}
	s.ex = nil
	s.machine.Attach(nil)
	if err := s.channel.Close(); err != nil {
		log.Debug().Err(err).Msg("supervisor.Supervisor.closeChannel")
	}
}

func (s *Supervisor) handlerName(frame []byte) string {
	if len(frame) <= apdu.OffsetIns {
		return ""
	}
	if e, ok := s.gate.Registry().Resolve(frame[apdu.OffsetIns]); ok {
		return e.Name
	}
	return ""
}

func (s *Supervisor) syncMode() {
	mode := s.app.Mode.String()
	s.update(func(st *Status) { st.Mode = mode })
}

func isReset(err error) bool {
	return errors.Is(err, transport.ErrReset) ||
		errors.Is(err, transport.ErrClosed) ||
		errors.Is(err, iostate.ErrNoExchanger)
}

func isInnerFault(err error) bool {
	return errors.Is(err, iostate.ErrProtocolViolation) ||
		errors.Is(err, dispatch.ErrMalformedFrame) ||
		errors.Is(err, dispatch.ErrHandlerFailed) ||
		errors.Is(err, transport.ErrFrameTooLarge)
}

func faultReason(err error) string {
	if errors.Is(err, iostate.ErrProtocolViolation) {
		return "protocol_violation"
	}
	if errors.Is(err, transport.ErrFrameTooLarge) && !errors.Is(err, dispatch.ErrHandlerFailed) {
		return "reply_too_large"
	}
	return dispatch.RejectReason(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
