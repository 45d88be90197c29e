// Package config loads the apductl TOML configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/apductl/internal/apdu"
	"github.com/danmuck/apductl/internal/appctx"
	"github.com/danmuck/apductl/internal/commands"
	"github.com/danmuck/apductl/internal/supervisor"
	"github.com/danmuck/apductl/internal/transport"
	"github.com/danmuck/apductl/internal/ux"
)

var ErrInvalidConfig = errors.New("config: invalid")

// maxFrameCeiling is the largest extended APDU plus status word.
const maxFrameCeiling = 65544

type Config struct {
	ListenAddr      string
	Class           byte
	UpperBound      byte
	MaxFrame        uint32
	VerificationKey []byte
	UseTestKey      bool
	MetricsAddr     string
	CORSOrigins     []string
	MaxResets       int
	Backoff         supervisor.BackoffConfig
	AutoApprove     ux.Policy
	ApproveDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:   "127.0.0.1:9999",
		Class:        apdu.DefaultClass,
		UpperBound:   commands.UpperBound,
		MaxFrame:     transport.DefaultLimits().MaxFrameBytes,
		UseTestKey:   true,
		MetricsAddr:  "",
		CORSOrigins:  nil,
		MaxResets:    0,
		Backoff:      supervisor.DefaultBackoffConfig(),
		AutoApprove:  ux.PolicyManual,
		ApproveDelay: time.Second,
	}
}

// Key returns the verification key the device boots with.
func (c Config) Key() []byte {
	if c.UseTestKey {
		return appctx.TestVerificationKey
	}
	return c.VerificationKey
}

func (c Config) Limits() transport.Limits {
	return transport.Limits{MaxFrameBytes: c.MaxFrame}
}

func (c Config) Supervisor() supervisor.Config {
	cfg := supervisor.DefaultConfig()
	cfg.Class = c.Class
	cfg.UpperBound = c.UpperBound
	cfg.VerificationKey = c.Key()
	cfg.MaxFrame = c.MaxFrame
	cfg.MaxResets = c.MaxResets
	cfg.Backoff = c.Backoff
	return cfg
}

func Validate(c Config) error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("%w: listen_addr is required", ErrInvalidConfig)
	}
	if c.UpperBound == 0 {
		return fmt.Errorf("%w: upper_bound must be > 0", ErrInvalidConfig)
	}
	if c.MaxFrame <= apdu.HeaderLen || c.MaxFrame > maxFrameCeiling {
		return fmt.Errorf("%w: max_frame=%d out of range", ErrInvalidConfig, c.MaxFrame)
	}
	if c.UseTestKey && len(c.VerificationKey) > 0 {
		return fmt.Errorf("%w: verification_key and use_test_key are exclusive", ErrInvalidConfig)
	}
	if len(c.VerificationKey) > 0 {
		if err := appctx.ValidatePublicKey(c.VerificationKey); err != nil {
			return fmt.Errorf("%w: verification_key: %w", ErrInvalidConfig, err)
		}
	}
	if c.MaxResets < 0 {
		return fmt.Errorf("%w: max_resets must be >= 0", ErrInvalidConfig)
	}
	if c.Backoff.InitialDelay < 0 || c.Backoff.MaxDelay < 0 {
		return fmt.Errorf("%w: reset backoff delays must be >= 0", ErrInvalidConfig)
	}
	if c.Backoff.Multiplier != 0 && c.Backoff.Multiplier < 1 {
		return fmt.Errorf("%w: reset_backoff_multiplier must be >= 1", ErrInvalidConfig)
	}
	switch c.AutoApprove {
	case ux.PolicyManual, ux.PolicyApprove, ux.PolicyReject:
	default:
		return fmt.Errorf("%w: auto_approve=%q", ErrInvalidConfig, c.AutoApprove)
	}
	if c.ApproveDelay < 0 {
		return fmt.Errorf("%w: approve_delay must be >= 0", ErrInvalidConfig)
	}
	return nil
}
