package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/apductl/internal/appctx"
)

var (
	ErrHandlerExists = errors.New("dispatch: handler already registered")
	ErrHandlerNil    = errors.New("dispatch: handler is nil")
	ErrInvalidName   = errors.New("dispatch: invalid handler name")
)

// ReplyFunc produces the reply for the command being handled.
type ReplyFunc func(resp []byte) error

// Handler processes one command. It either calls reply before returning, or
// arranges for reply to be called later from a UX callback. A non-nil error
// is non-recoverable for the current cycle.
type Handler interface {
	Handle(ctx context.Context, app *appctx.Context, payload []byte, reply ReplyFunc) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, app *appctx.Context, payload []byte, reply ReplyFunc) error

func (f HandlerFunc) Handle(ctx context.Context, app *appctx.Context, payload []byte, reply ReplyFunc) error {
	return f(ctx, app, payload, reply)
}

// Entry is one row of the opcode table.
type Entry struct {
	Ins     byte
	Name    string
	Handler Handler
}

// Registry stores handlers by instruction byte.
type Registry struct {
	items map[byte]Entry
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[byte]Entry)}
}

// Register adds h under ins.
func (r *Registry) Register(ins byte, name string, h Handler) error {
	if h == nil {
		return ErrHandlerNil
	}
	name = strings.TrimSpace(name)
	if !isValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if existing, ok := r.items[ins]; ok {
		return fmt.Errorf("%w: ins=0x%02x name=%s", ErrHandlerExists, ins, existing.Name)
	}
	r.items[ins] = Entry{Ins: ins, Name: name, Handler: h}
	return nil
}

// Resolve returns the entry for ins.
func (r *Registry) Resolve(ins byte) (Entry, bool) {
	e, ok := r.items[ins]
	return e, ok
}

// List returns entries ordered by instruction byte.
func (r *Registry) List() []Entry {
	list := make([]Entry, 0, len(r.items))
	for _, e := range r.items {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Ins < list[j].Ins
	})
	return list
}

func (r *Registry) Len() int {
	return len(r.items)
}

func isValidName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		if !(isLower || isDigit || c == '_') {
			return false
		}
		if (i == 0 || i == len(name)-1) && c == '_' {
			return false
		}
	}
	return true
}
