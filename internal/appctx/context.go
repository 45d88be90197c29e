// Package appctx owns the long-lived application context shared by the
// dispatch gate and command handlers.
package appctx

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// UncompressedKeyLen is a SEC1 uncompressed secp256k1 point: 0x04 | X | Y.
const UncompressedKeyLen = 65

var ErrInvalidPublicKey = errors.New("appctx: invalid public key")

// Mode is the application-level flow flag.
type Mode uint8

const (
	ModeInitial Mode = iota
	ModeTransactionStarted
	ModePartnerSet
	ModeAwaitingConfirmation
)

func (m Mode) String() string {
	switch m {
	case ModeInitial:
		return "initial"
	case ModeTransactionStarted:
		return "transaction_started"
	case ModePartnerSet:
		return "partner_set"
	case ModeAwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Partner is the counterparty registered for the current flow.
type Partner struct {
	Name      string
	PublicKey []byte
}

// Context is owned by the supervisor and passed by pointer on every cycle.
type Context struct {
	VerificationKey []byte
	Mode            Mode
	TransactionID   []byte
	Partner         *Partner
}

// TestVerificationKey is the public key of sha256("Ledger") on secp256k1,
// used by development builds in place of the production key.
var TestVerificationKey = []byte{
	0x04,
	0x05, 0xC5, 0x2E, 0xC5, 0xFE, 0x24, 0x5A, 0x55,
	0x7B, 0x86, 0x1D, 0x22, 0x18, 0x50, 0x1A, 0x81,
	0x2D, 0x32, 0xE0, 0x34, 0xE1, 0x5E, 0x9D, 0x96,
	0x1C, 0x1B, 0x1A, 0x13, 0x8C, 0x7F, 0xB1, 0x49,
	0x6B, 0x4F, 0xBA, 0x66, 0x65, 0x56, 0x66, 0x62,
	0x3E, 0xB7, 0x8C, 0x93, 0xE9, 0xF0, 0x00, 0x8F,
	0xCC, 0xA6, 0x0A, 0x53, 0x85, 0x88, 0x13, 0x1A,
	0x2A, 0xC7, 0xBA, 0x98, 0xE1, 0xF6, 0x20, 0xCE,
}

// Init installs the verification key and resets the flow to ModeInitial.
// An empty key is accepted and leaves the context without key material.
func Init(ctx *Context, key []byte) error {
	if len(key) > 0 {
		if err := ValidatePublicKey(key); err != nil {
			return err
		}
	}
	ctx.VerificationKey = append([]byte(nil), key...)
	ctx.ResetFlow()
	return nil
}

// ResetFlow drops per-flow state and returns to ModeInitial. Key material is
// left untouched.
func (c *Context) ResetFlow() {
	c.Mode = ModeInitial
	c.TransactionID = nil
	c.Partner = nil
}

// Idle reports whether no multi-step command is in progress.
func (c *Context) Idle() bool {
	return c.Mode == ModeInitial
}

// KeyFingerprint is a short blake2b digest of the verification key.
func (c *Context) KeyFingerprint() string {
	return Fingerprint(c.VerificationKey)
}

// Fingerprint returns the first 8 bytes of blake2b-256(key) in hex, or ""
// for an empty key.
func Fingerprint(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	sum := blake2b.Sum256(key)
	return hex.EncodeToString(sum[:8])
}

// ValidatePublicKey checks the SEC1 uncompressed encoding.
func ValidatePublicKey(key []byte) error {
	if len(key) != UncompressedKeyLen {
		return fmt.Errorf("%w: len=%d want %d", ErrInvalidPublicKey, len(key), UncompressedKeyLen)
	}
	if key[0] != 0x04 {
		return fmt.Errorf("%w: prefix 0x%02x", ErrInvalidPublicKey, key[0])
	}
	return nil
}
