package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const templateHeader = `# apductl configuration
# class and upper_bound are decimal bytes (224 = 0xE0).
# auto_approve is one of "manual", "approve", "reject".
# reset_backoff_jitter scales each reset delay by a random 0.5x-1.5x.

`

// Template renders cfg as a TOML document Load accepts.
func Template(cfg Config) (string, error) {
	raw := fileConfig{
		ListenAddr:             cfg.ListenAddr,
		Class:                  int(cfg.Class),
		UpperBound:             int(cfg.UpperBound),
		MaxFrame:               int64(cfg.MaxFrame),
		VerificationKey:        hex.EncodeToString(cfg.VerificationKey),
		UseTestKey:             cfg.UseTestKey,
		MetricsAddr:            cfg.MetricsAddr,
		CORSOrigins:            cfg.CORSOrigins,
		MaxResets:              cfg.MaxResets,
		ResetBackoffInitial:    cfg.Backoff.InitialDelay.String(),
		ResetBackoffMax:        cfg.Backoff.MaxDelay.String(),
		ResetBackoffMultiplier: cfg.Backoff.Multiplier,
		ResetBackoffJitter:     cfg.Backoff.Jitter,
		AutoApprove:            string(cfg.AutoApprove),
		ApproveDelay:           cfg.ApproveDelay.String(),
	}
	if raw.CORSOrigins == nil {
		raw.CORSOrigins = []string{}
	}
	out, err := toml.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return templateHeader + string(out), nil
}

// WriteTemplate writes the default configuration to path.
func WriteTemplate(path string, overwrite bool) error {
	template, err := Template(DefaultConfig())
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
