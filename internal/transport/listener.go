package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// Listener is a TCP Channel that serves one host connection per session.
// Open accepts the next host; Close drops that host but keeps listening.
type Listener struct {
	addr   string
	limits Limits

	mu   sync.Mutex
	ln   net.Listener
	conn net.Conn
}

func NewListener(addr string, limits Limits) *Listener {
	return &Listener{addr: addr, limits: limits.withDefaults()}
}

// Listen binds the socket without accepting. Open calls it lazily.
func (l *Listener) Listen(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return nil
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return err
	}
	l.ln = ln
	log.Info().Str("addr", ln.Addr().String()).Msg("transport.Listener.Listen bound")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *Listener) Open(ctx context.Context) (Exchanger, error) {
	if err := l.Listen(ctx); err != nil {
		return nil, err
	}
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = l.Shutdown() })
	conn, err := ln.Accept()
	stop()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("transport.Listener.Open host connected")
	return NewStream(conn, l.limits), nil
}

func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}

// Shutdown closes the host connection and the listening socket.
func (l *Listener) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	if l.conn != nil {
		errs = append(errs, l.conn.Close())
		l.conn = nil
	}
	if l.ln != nil {
		errs = append(errs, l.ln.Close())
		l.ln = nil
	}
	return errors.Join(errs...)
}
