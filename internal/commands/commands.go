// Package commands holds the built-in handler set registered with the
// dispatch gate.
package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/apductl/internal/apdu"
	"github.com/danmuck/apductl/internal/appctx"
	"github.com/danmuck/apductl/internal/dispatch"
	"github.com/danmuck/apductl/internal/ux"
)

const (
	InsGetVersion         byte = 0x01
	InsStartTransaction   byte = 0x02
	InsSetPartnerKey      byte = 0x03
	InsConfirmTransaction byte = 0x04

	// UpperBound is the first opcode past the built-in set.
	UpperBound byte = 0x05

	TransactionIDLen = 10
)

var ErrNoDisplay = errors.New("commands: display is required")

// Options configures the built-in handlers.
type Options struct {
	Version [3]byte
	Rand    io.Reader
}

// Register installs the built-in handlers into reg.
func Register(reg *dispatch.Registry, display ux.Display, opts Options) error {
	if display == nil {
		return ErrNoDisplay
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	h := &handlers{display: display, opts: opts}
	entries := []struct {
		ins  byte
		name string
		fn   dispatch.HandlerFunc
	}{
		{InsGetVersion, "get_version", h.getVersion},
		{InsStartTransaction, "start_new_transaction", h.startTransaction},
		{InsSetPartnerKey, "set_partner_key", h.setPartnerKey},
		{InsConfirmTransaction, "confirm_transaction", h.confirmTransaction},
	}
	for _, e := range entries {
		if err := reg.Register(e.ins, e.name, e.fn); err != nil {
			return err
		}
	}
	return nil
}

type handlers struct {
	display ux.Display
	opts    Options
}

func status(reply dispatch.ReplyFunc, sw apdu.StatusWord) error {
	return reply(apdu.Response(nil, sw))
}

func (h *handlers) getVersion(_ context.Context, _ *appctx.Context, payload []byte, reply dispatch.ReplyFunc) error {
	if _, err := apdu.ParseParams(payload); err != nil {
		return status(reply, apdu.SWWrongLength)
	}
	return reply(apdu.Response(h.opts.Version[:], apdu.SWSuccess))
}

func (h *handlers) startTransaction(_ context.Context, app *appctx.Context, payload []byte, reply dispatch.ReplyFunc) error {
	if _, err := apdu.ParseParams(payload); err != nil {
		return status(reply, apdu.SWWrongLength)
	}
	id := make([]byte, TransactionIDLen)
	if _, err := io.ReadFull(h.opts.Rand, id); err != nil {
		return fmt.Errorf("commands: transaction id: %w", err)
	}
	app.ResetFlow()
	app.TransactionID = id
	app.Mode = appctx.ModeTransactionStarted
	log.Debug().Str("tx_id", hex.EncodeToString(id)).Msg("commands.startTransaction")
	return reply(apdu.Response(id, apdu.SWSuccess))
}

func (h *handlers) setPartnerKey(_ context.Context, app *appctx.Context, payload []byte, reply dispatch.ReplyFunc) error {
	params, err := apdu.ParseParams(payload)
	if err != nil {
		return status(reply, apdu.SWWrongLength)
	}
	if app.Mode != appctx.ModeTransactionStarted {
		return status(reply, apdu.SWConditionsNotSatisfied)
	}
	partner, err := parsePartner(params.Data)
	if err != nil {
		log.Debug().Err(err).Msg("commands.setPartnerKey rejected")
		return status(reply, apdu.SWWrongParams)
	}
	app.Partner = &partner
	app.Mode = appctx.ModePartnerSet
	log.Debug().Str("partner", partner.Name).Str("key", appctx.Fingerprint(partner.PublicKey)).Msg("commands.setPartnerKey")
	return status(reply, apdu.SWSuccess)
}

// parsePartner reads `len | name | pubkey` from data.
func parsePartner(data []byte) (appctx.Partner, error) {
	if len(data) < 1 {
		return appctx.Partner{}, apdu.ErrShortParams
	}
	n := int(data[0])
	if n == 0 || len(data) < 1+n {
		return appctx.Partner{}, fmt.Errorf("%w: name len=%d", apdu.ErrLengthMismatch, n)
	}
	key := data[1+n:]
	if err := appctx.ValidatePublicKey(key); err != nil {
		return appctx.Partner{}, err
	}
	return appctx.Partner{
		Name:      string(data[1 : 1+n]),
		PublicKey: append([]byte(nil), key...),
	}, nil
}

// confirmTransaction opens a prompt and returns without replying. The reply
// is produced by the decision callback.
func (h *handlers) confirmTransaction(_ context.Context, app *appctx.Context, payload []byte, reply dispatch.ReplyFunc) error {
	if _, err := apdu.ParseParams(payload); err != nil {
		return status(reply, apdu.SWWrongLength)
	}
	if app.Mode != appctx.ModePartnerSet || app.Partner == nil {
		return status(reply, apdu.SWConditionsNotSatisfied)
	}
	app.Mode = appctx.ModeAwaitingConfirmation
	prompt := ux.Prompt{
		Title: "Confirm transaction",
		Fields: []ux.Field{
			{Label: "Transaction", Value: hex.EncodeToString(app.TransactionID)},
			{Label: "Partner", Value: app.Partner.Name},
			{Label: "Partner key", Value: appctx.Fingerprint(app.Partner.PublicKey)},
		},
	}
	h.display.Confirm(prompt, func(approved bool) error {
		app.ResetFlow()
		h.display.Idle()
		if !approved {
			log.Info().Msg("commands.confirmTransaction refused")
			return status(reply, apdu.SWUserRefused)
		}
		log.Info().Msg("commands.confirmTransaction approved")
		return status(reply, apdu.SWSuccess)
	})
	return nil
}
