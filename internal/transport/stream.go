package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
)

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Stream is an Exchanger over a length-prefixed byte stream such as a TCP
// connection. Read/write failures are reported as ErrReset because the
// stream can no longer be trusted to be frame aligned.
//
// While a reply is deferred, Stream watches the read side and signals
// Resets when the host goes away.
type Stream struct {
	rw     io.ReadWriter
	br     *bufio.Reader
	limits Limits
	resets chan struct{}
	// watch receives the watcher's peek result; nil when no watch runs.
	watch chan error
}

// NewStream wraps rw. A zero Limits value selects DefaultLimits.
func NewStream(rw io.ReadWriter, limits Limits) *Stream {
	return &Stream{
		rw:     rw,
		br:     bufio.NewReader(rw),
		limits: limits.withDefaults(),
		resets: make(chan struct{}, 1),
	}
}

// Resets fires when the read side fails during a deferred reply.
func (s *Stream) Resets() <-chan struct{} {
	return s.resets
}

func (s *Stream) Exchange(ctx context.Context, mode Mode, tx []byte) ([]byte, error) {
	switch mode {
	case ModeReceive:
		if tx != nil {
			if err := s.write(tx); err != nil {
				return nil, err
			}
		}
		return s.read(ctx)
	case ModeAsyncReply:
		if tx != nil {
			if err := s.write(tx); err != nil {
				return nil, err
			}
		}
		s.watchDisconnect()
		log.Debug().Str("mode", mode.String()).Msg("transport.Stream.Exchange reply deferred")
		return nil, nil
	case ModeReturnAfterTx:
		return nil, s.write(tx)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
}

func (s *Stream) write(tx []byte) error {
	err := WriteFrame(s.rw, tx, s.limits)
	if errors.Is(err, ErrFrameTooLarge) {
		return err
	}
	return wrapReset(err)
}

// watchDisconnect peeks one byte in the background. Buffered bytes stay in
// br for the next read.
func (s *Stream) watchDisconnect() {
	if s.watch != nil {
		return
	}
	done := make(chan error, 1)
	s.watch = done
	go func() {
		_, err := s.br.Peek(1)
		if err != nil && !isTimeout(err) {
			log.Debug().Err(err).Msg("transport.Stream host gone during deferred reply")
			select {
			case s.resets <- struct{}{}:
			default:
			}
		}
		done <- err
	}()
}

func (s *Stream) read(ctx context.Context) ([]byte, error) {
	if d, ok := s.rw.(deadliner); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetReadDeadline(time.Unix(1, 0))
		})
		defer func() {
			if !stop() {
				_ = d.SetReadDeadline(time.Time{})
			}
		}()
	}
	if s.watch != nil {
		select {
		case err := <-s.watch:
			s.watch = nil
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, wrapReset(err)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	frame, err := ReadFrame(s.br, s.limits)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, wrapReset(err)
	}
	return frame, nil
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
