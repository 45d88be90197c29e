package ux

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
)

// Policy selects how the console answers prompts on its own.
type Policy string

const (
	PolicyManual  Policy = "manual"
	PolicyApprove Policy = "approve"
	PolicyReject  Policy = "reject"
)

// ConsoleOptions configures the console display.
type ConsoleOptions struct {
	Out    io.Writer
	Policy Policy
	Delay  time.Duration
}

var (
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Faint(true)
)

// Console renders screens to a writer and optionally answers prompts after
// a delay. Prompts left to PolicyManual are answered through Decide.
type Console struct {
	*Manual
	opts ConsoleOptions

	mu    sync.Mutex
	timer *time.Timer
}

func NewConsole(queue *Queue, opts ConsoleOptions) *Console {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Policy == "" {
		opts.Policy = PolicyManual
	}
	return &Console{Manual: NewManual(queue), opts: opts}
}

func (c *Console) Idle() {
	c.Manual.Idle()
	fmt.Fprintln(c.opts.Out, boxStyle.Render(titleStyle.Render("Application is ready")))
}

func (c *Console) Confirm(p Prompt, decide DecideFunc) {
	c.Manual.Confirm(p, decide)
	fmt.Fprintln(c.opts.Out, RenderPrompt(p))
	if c.opts.Policy == PolicyManual {
		return
	}
	approved := c.opts.Policy == PolicyApprove
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.timer = time.AfterFunc(c.opts.Delay, func() {
		if err := c.Manual.Decide(approved); err != nil {
			log.Warn().Err(err).Msg("ux.Console.Confirm auto decision dropped")
		}
	})
}

func (c *Console) Reset() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
	c.Manual.Reset()
}

func (c *Console) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// RenderPrompt lays out p as a bordered box.
func RenderPrompt(p Prompt) string {
	lines := make([]string, 0, len(p.Fields)+1)
	lines = append(lines, titleStyle.Render(p.Title))
	width := 0
	for _, f := range p.Fields {
		if len(f.Label) > width {
			width = len(f.Label)
		}
	}
	for _, f := range p.Fields {
		pad := strings.Repeat(" ", width-len(f.Label))
		lines = append(lines, labelStyle.Render(f.Label+pad)+"  "+f.Value)
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
