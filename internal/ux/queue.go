package ux

import (
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var ErrQueueFull = errors.New("ux: event queue full")

// Callback runs on the supervisor goroutine.
type Callback func() error

// Event is one queued callback stamped with the generation it was bound to.
type Event struct {
	gen uint64
	cb  Callback
}

// Queue is the cooperative scheduler between UX sources and the supervisor.
// Reset bumps the generation so callbacks bound before a reset are dropped.
type Queue struct {
	ch  chan Event
	gen atomic.Uint64
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 8
	}
	return &Queue{ch: make(chan Event, size)}
}

// Poster enqueues callbacks for the generation it was bound to.
type Poster func(cb Callback) error

// Bind returns a Poster stamped with the current generation.
func (q *Queue) Bind() Poster {
	gen := q.gen.Load()
	return func(cb Callback) error {
		select {
		case q.ch <- Event{gen: gen, cb: cb}:
			return nil
		default:
			log.Warn().Uint64("gen", gen).Msg("ux.Queue.Post dropped event")
			return ErrQueueFull
		}
	}
}

// Post enqueues cb for the current generation.
func (q *Queue) Post(cb Callback) error {
	return q.Bind()(cb)
}

func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Run executes ev unless it is stale.
func (q *Queue) Run(ev Event) error {
	if ev.gen != q.gen.Load() {
		log.Debug().Uint64("gen", ev.gen).Msg("ux.Queue.Run stale event skipped")
		return nil
	}
	if ev.cb == nil {
		return nil
	}
	return ev.cb()
}

// Reset invalidates all bound posters and drains queued events.
func (q *Queue) Reset() {
	q.gen.Add(1)
	for {
		select {
		case <-q.ch:
		default:
			return
		}
	}
}

func (q *Queue) Generation() uint64 {
	return q.gen.Load()
}
