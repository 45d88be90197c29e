package transport

import (
	"context"
	"sync"
	"sync/atomic"
)

// Pipe is an in-memory Channel. The host side submits command frames and
// reads replies; Reset injects a transport reset into the device side.
type Pipe struct {
	commands chan []byte
	replies  chan []byte
	resets   chan struct{}

	opens  atomic.Int64
	asyncs atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewPipe creates a pipe whose queues hold depth frames each.
func NewPipe(depth int) *Pipe {
	if depth <= 0 {
		depth = 1
	}
	return &Pipe{
		commands: make(chan []byte, depth),
		replies:  make(chan []byte, depth),
		resets:   make(chan struct{}, 1),
	}
}

func (p *Pipe) Open(ctx context.Context) (Exchanger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.closed = false
	p.mu.Unlock()
	// A reset raised between sessions belongs to the session that ended.
	select {
	case <-p.resets:
	default:
	}
	p.opens.Add(1)
	return &pipeEnd{p: p}, nil
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Opens reports how many times the channel was brought up.
func (p *Pipe) Opens() int {
	return int(p.opens.Load())
}

// AsyncReplies reports how many exchanges deferred their reply.
func (p *Pipe) AsyncReplies() int {
	return int(p.asyncs.Load())
}

// Submit queues a command frame from the host.
func (p *Pipe) Submit(ctx context.Context, frame []byte) error {
	buf := append([]byte(nil), frame...)
	select {
	case p.commands <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Replies is the stream of frames transmitted by the device.
func (p *Pipe) Replies() <-chan []byte {
	return p.replies
}

// Reply waits for the next transmitted frame.
func (p *Pipe) Reply(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-p.replies:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reset signals a transport reset. Pending resets coalesce.
func (p *Pipe) Reset() {
	select {
	case p.resets <- struct{}{}:
	default:
	}
}

type pipeEnd struct {
	p *Pipe
}

func (e *pipeEnd) Resets() <-chan struct{} {
	return e.p.resets
}

func (e *pipeEnd) Exchange(ctx context.Context, mode Mode, tx []byte) ([]byte, error) {
	e.p.mu.Lock()
	closed := e.p.closed
	e.p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	switch mode {
	case ModeReceive, ModeAsyncReply:
		if tx != nil {
			if err := e.transmit(ctx, tx); err != nil {
				return nil, err
			}
		}
		if mode == ModeAsyncReply {
			e.p.asyncs.Add(1)
			return nil, nil
		}
		select {
		case frame := <-e.p.commands:
			return frame, nil
		case <-e.p.resets:
			return nil, ErrReset
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case ModeReturnAfterTx:
		return nil, e.transmit(ctx, tx)
	default:
		return nil, ErrUnknownMode
	}
}

func (e *pipeEnd) transmit(ctx context.Context, tx []byte) error {
	buf := append([]byte{}, tx...)
	select {
	case e.p.replies <- buf:
		return nil
	case <-e.p.resets:
		return ErrReset
	case <-ctx.Done():
		return ctx.Err()
	}
}
