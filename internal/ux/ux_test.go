package ux

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/apductl/internal/testutil/testlog"
)

func drainOne(t *testing.T, q *Queue) error {
	t.Helper()
	select {
	case ev := <-q.Events():
		return q.Run(ev)
	case <-time.After(2 * time.Second):
		t.Fatalf("no event queued")
		return nil
	}
}

func TestQueueRunsCurrentGeneration(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(2)
	ran := 0
	require.NoError(t, q.Post(func() error { ran++; return nil }))
	require.NoError(t, drainOne(t, q))
	assert.Equal(t, 1, ran)
}

func TestQueueDropsStaleEvents(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(2)
	stale := q.Bind()
	ran := 0
	require.NoError(t, q.Post(func() error { ran++; return nil }))
	q.Reset()
	assert.Empty(t, q.Events(), "reset drains queued events")

	require.NoError(t, stale(func() error { ran++; return nil }))
	require.NoError(t, drainOne(t, q))
	assert.Zero(t, ran, "events bound before reset must not run")
	assert.Equal(t, uint64(1), q.Generation())
}

func TestQueueFull(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(1)
	require.NoError(t, q.Post(func() error { return nil }))
	require.ErrorIs(t, q.Post(func() error { return nil }), ErrQueueFull)
}

func TestQueuePropagatesCallbackError(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(1)
	cause := errors.New("reply failed")
	require.NoError(t, q.Post(func() error { return cause }))
	require.ErrorIs(t, drainOne(t, q), cause)
}

func TestManualDecide(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(1)
	m := NewManual(q)
	require.ErrorIs(t, m.Decide(true), ErrNoPrompt)

	var got *bool
	m.Confirm(Prompt{Title: "Confirm"}, func(approved bool) error {
		got = &approved
		return nil
	})
	p, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "Confirm", p.Title)

	require.NoError(t, m.Decide(false))
	_, ok = m.Current()
	assert.False(t, ok)
	require.NoError(t, drainOne(t, q))
	require.NotNil(t, got)
	assert.False(t, *got)
}

func TestManualResetClosesPrompt(t *testing.T) {
	testlog.Start(t)
	m := NewManual(NewQueue(1))
	m.Confirm(Prompt{Title: "Confirm"}, func(bool) error { return nil })
	m.Reset()
	_, ok := m.Current()
	assert.False(t, ok)
	assert.Equal(t, 1, m.Resets())
	require.ErrorIs(t, m.Decide(true), ErrNoPrompt)
}

func TestConsoleAutoApprove(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(1)
	var out bytes.Buffer
	c := NewConsole(q, ConsoleOptions{Out: &out, Policy: PolicyApprove, Delay: time.Millisecond})

	c.Idle()
	assert.Equal(t, 1, c.Idles())

	approved := false
	c.Confirm(Prompt{Title: "Confirm transaction", Fields: []Field{{Label: "Partner", Value: "acme"}}}, func(ok bool) error {
		approved = ok
		return nil
	})
	require.NoError(t, drainOne(t, q))
	assert.True(t, approved)
	assert.Contains(t, out.String(), "Application is ready")
	assert.Contains(t, out.String(), "acme")
}

func TestConsoleResetStopsPendingDecision(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(1)
	c := NewConsole(q, ConsoleOptions{Policy: PolicyReject, Delay: 50 * time.Millisecond})
	c.Confirm(Prompt{Title: "Confirm"}, func(bool) error { return nil })
	c.Reset()
	select {
	case <-q.Events():
		t.Fatalf("reset console must not post a decision")
	case <-time.After(120 * time.Millisecond):
	}
}

func TestRenderPromptAlignsLabels(t *testing.T) {
	out := RenderPrompt(Prompt{Title: "T", Fields: []Field{{Label: "A", Value: "1"}, {Label: "Longer", Value: "2"}}})
	assert.Contains(t, out, "A"+strings.Repeat(" ", 7)+"1")
	assert.Contains(t, out, "Longer  2")
}
