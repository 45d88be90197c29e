package ux

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrNoPrompt = errors.New("ux: no open prompt")

// Manual is a Display whose prompts are answered by calling Decide, e.g.
// from the admin server.
type Manual struct {
	queue *Queue

	mu     sync.Mutex
	prompt *Prompt
	decide DecideFunc
	post   Poster
	idles  int
	resets int
}

func NewManual(queue *Queue) *Manual {
	return &Manual{queue: queue}
}

func (m *Manual) Idle() {
	m.mu.Lock()
	m.idles++
	m.mu.Unlock()
	log.Debug().Msg("ux.Manual.Idle")
}

func (m *Manual) Confirm(p Prompt, decide DecideFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompt = &p
	m.decide = decide
	m.post = m.queue.Bind()
	log.Info().Str("title", p.Title).Int("fields", len(p.Fields)).Msg("ux.Manual.Confirm prompt open")
}

// Current returns the open prompt, if any.
func (m *Manual) Current() (Prompt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prompt == nil {
		return Prompt{}, false
	}
	return *m.prompt, true
}

// Decide answers the open prompt and closes it.
func (m *Manual) Decide(approved bool) error {
	m.mu.Lock()
	decide, post := m.decide, m.post
	m.prompt, m.decide, m.post = nil, nil, nil
	m.mu.Unlock()
	if decide == nil {
		return ErrNoPrompt
	}
	log.Info().Bool("approved", approved).Msg("ux.Manual.Decide")
	return post(func() error { return decide(approved) })
}

func (m *Manual) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompt, m.decide, m.post = nil, nil, nil
	m.resets++
}

// Idles reports how many times the idle screen was rendered.
func (m *Manual) Idles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idles
}

// Resets reports how many times volatile UI state was dropped.
func (m *Manual) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}
