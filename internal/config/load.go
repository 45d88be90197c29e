package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/apductl/internal/apdu"
	"github.com/danmuck/apductl/internal/ux"
)

type fileConfig struct {
	ListenAddr             string   `toml:"listen_addr"`
	Class                  int      `toml:"class"`
	UpperBound             int      `toml:"upper_bound"`
	MaxFrame               int64    `toml:"max_frame"`
	VerificationKey        string   `toml:"verification_key"`
	UseTestKey             bool     `toml:"use_test_key"`
	MetricsAddr            string   `toml:"metrics_addr"`
	CORSOrigins            []string `toml:"cors_origins"`
	MaxResets              int      `toml:"max_resets"`
	ResetBackoffInitial    string   `toml:"reset_backoff_initial"`
	ResetBackoffMax        string   `toml:"reset_backoff_max"`
	ResetBackoffMultiplier float64  `toml:"reset_backoff_multiplier"`
	ResetBackoffJitter     bool     `toml:"reset_backoff_jitter"`
	AutoApprove            string   `toml:"auto_approve"`
	ApproveDelay           string   `toml:"approve_delay"`
}

// Load overlays the keys defined in path onto DefaultConfig and validates
// the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("class") {
		b, err := byteValue("class", raw.Class)
		if err != nil {
			return Config{}, err
		}
		cfg.Class = b
	}
	if meta.IsDefined("upper_bound") {
		b, err := byteValue("upper_bound", raw.UpperBound)
		if err != nil {
			return Config{}, err
		}
		cfg.UpperBound = b
	}
	if meta.IsDefined("max_frame") {
		if raw.MaxFrame <= 0 || raw.MaxFrame > maxFrameCeiling {
			return Config{}, fmt.Errorf("%w: max_frame=%d out of range", ErrInvalidConfig, raw.MaxFrame)
		}
		cfg.MaxFrame = uint32(raw.MaxFrame)
	}
	if meta.IsDefined("use_test_key") {
		cfg.UseTestKey = raw.UseTestKey
	}
	if meta.IsDefined("verification_key") {
		key, err := apdu.DecodeHex(raw.VerificationKey)
		if err != nil {
			return Config{}, fmt.Errorf("%w: verification_key: %w", ErrInvalidConfig, err)
		}
		if len(key) > 0 {
			cfg.VerificationKey = key
			if !meta.IsDefined("use_test_key") {
				cfg.UseTestKey = false
			}
		}
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = nil
		for _, o := range raw.CORSOrigins {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	if meta.IsDefined("max_resets") {
		cfg.MaxResets = raw.MaxResets
	}
	if meta.IsDefined("reset_backoff_initial") {
		d, err := parseDuration("reset_backoff_initial", raw.ResetBackoffInitial)
		if err != nil {
			return Config{}, err
		}
		cfg.Backoff.InitialDelay = d
	}
	if meta.IsDefined("reset_backoff_max") {
		d, err := parseDuration("reset_backoff_max", raw.ResetBackoffMax)
		if err != nil {
			return Config{}, err
		}
		cfg.Backoff.MaxDelay = d
	}
	if meta.IsDefined("reset_backoff_multiplier") {
		cfg.Backoff.Multiplier = raw.ResetBackoffMultiplier
	}
	if meta.IsDefined("reset_backoff_jitter") {
		cfg.Backoff.Jitter = raw.ResetBackoffJitter
	}
	if meta.IsDefined("auto_approve") {
		cfg.AutoApprove = ux.Policy(strings.ToLower(strings.TrimSpace(raw.AutoApprove)))
	}
	if meta.IsDefined("approve_delay") {
		d, err := parseDuration("approve_delay", raw.ApproveDelay)
		if err != nil {
			return Config{}, err
		}
		cfg.ApproveDelay = d
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func byteValue(key string, v int) (byte, error) {
	if v < 0 || v > 0xFF {
		return 0, fmt.Errorf("%w: %s=%d out of byte range", ErrInvalidConfig, key, v)
	}
	return byte(v), nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, key, err)
	}
	return d, nil
}
