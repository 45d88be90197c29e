package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrReset         = errors.New("transport: reset")
	ErrFrameTooLarge = errors.New("transport: frame too large")
	ErrUnknownMode   = errors.New("transport: unknown exchange mode")
	ErrClosed        = errors.New("transport: channel closed")
)

// Mode selects how an exchange behaves after transmitting.
type Mode uint8

const (
	// ModeReceive transmits tx (when non-nil) and blocks for the next frame.
	ModeReceive Mode = iota
	// ModeAsyncReply tells the channel a reply follows after user approval
	// and returns immediately without a frame.
	ModeAsyncReply
	// ModeReturnAfterTx transmits tx and returns without receiving.
	ModeReturnAfterTx
)

func (m Mode) String() string {
	switch m {
	case ModeReceive:
		return "receive"
	case ModeAsyncReply:
		return "async_reply"
	case ModeReturnAfterTx:
		return "return_after_tx"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Exchanger is the synchronous exchange primitive.
type Exchanger interface {
	Exchange(ctx context.Context, mode Mode, tx []byte) ([]byte, error)
}

// Channel is a resettable physical channel. Open performs bring-up and
// returns the exchanger for this session; Close releases session resources
// so Open may be called again.
type Channel interface {
	Open(ctx context.Context) (Exchanger, error)
	Close() error
}

// ResetNotifier is implemented by exchangers that can signal a reset while no
// exchange is in flight, e.g. during a user-approval wait.
type ResetNotifier interface {
	Resets() <-chan struct{}
}

func wrapReset(err error) error {
	if err == nil || errors.Is(err, ErrReset) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrReset, err)
}
