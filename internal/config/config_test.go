package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/apductl/internal/appctx"
	"github.com/danmuck/apductl/internal/testutil/testlog"
	"github.com/danmuck/apductl/internal/ux"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apductl.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverlaysDefinedKeys(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
listen_addr = "0.0.0.0:7000"
class = 0xD0
max_resets = 3
reset_backoff_initial = "10ms"
auto_approve = "Approve"
approve_delay = "250ms"
cors_origins = ["http://localhost:3000", " "]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:7000" || cfg.Class != 0xD0 || cfg.MaxResets != 3 {
		t.Fatalf("unexpected overlay: %+v", cfg)
	}
	if cfg.Backoff.InitialDelay != 10*time.Millisecond || cfg.Backoff.MaxDelay != DefaultConfig().Backoff.MaxDelay {
		t.Fatalf("unexpected backoff: %+v", cfg.Backoff)
	}
	if cfg.AutoApprove != ux.PolicyApprove || cfg.ApproveDelay != 250*time.Millisecond {
		t.Fatalf("unexpected approval settings: %q %v", cfg.AutoApprove, cfg.ApproveDelay)
	}
	if len(cfg.CORSOrigins) != 1 {
		t.Fatalf("expected blank origin dropped, got %v", cfg.CORSOrigins)
	}
	if cfg.UpperBound != DefaultConfig().UpperBound || !cfg.UseTestKey {
		t.Fatalf("undefined keys must keep defaults: %+v", cfg)
	}
}

func TestLoadPassesFrameLimitAndJitterToSupervisor(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(writeConfig(t, "max_frame = 64\nreset_backoff_jitter = true\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sup := cfg.Supervisor()
	if sup.MaxFrame != 64 || cfg.Limits().MaxFrameBytes != 64 {
		t.Fatalf("frame limit not propagated: supervisor=%d limits=%d", sup.MaxFrame, cfg.Limits().MaxFrameBytes)
	}
	if !sup.Backoff.Jitter {
		t.Fatalf("expected jitter enabled: %+v", sup.Backoff)
	}
	if DefaultConfig().Backoff.Jitter {
		t.Fatalf("jitter must default off")
	}
}

func TestLoadVerificationKeyDisablesTestKey(t *testing.T) {
	testlog.Start(t)
	key := strings.Repeat("04", 1) + strings.Repeat("11", 64)
	cfg, err := Load(writeConfig(t, `verification_key = "`+key+`"`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.UseTestKey || len(cfg.Key()) != appctx.UncompressedKeyLen {
		t.Fatalf("expected explicit key, got use_test_key=%v key=%x", cfg.UseTestKey, cfg.Key())
	}
	if got := cfg.Supervisor().VerificationKey; len(got) != appctx.UncompressedKeyLen {
		t.Fatalf("supervisor config missing key: %x", got)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"class range":     `class = 300`,
		"zero bound":      `upper_bound = 0`,
		"frame range":     `max_frame = 1`,
		"bad key":         `verification_key = "0401"`,
		"bad hex":         `verification_key = "zz"`,
		"both keys":       "use_test_key = true\nverification_key = \"04" + strings.Repeat("11", 64) + "\"",
		"bad duration":    `approve_delay = "soon"`,
		"bad policy":      `auto_approve = "sometimes"`,
		"bad multiplier":  `reset_backoff_multiplier = 0.5`,
		"negative resets": `max_resets = -1`,
		"unknown key":     `listen = ":1"`,
		"empty addr":      `listen_addr = ""`,
		"jitter type":     `reset_backoff_jitter = "yes"`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error for %q", body)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "apductl.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected overwrite guard")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	want := DefaultConfig()
	if cfg.ListenAddr != want.ListenAddr || cfg.Class != want.Class || cfg.MaxFrame != want.MaxFrame ||
		cfg.Backoff != want.Backoff || cfg.AutoApprove != want.AutoApprove || cfg.ApproveDelay != want.ApproveDelay ||
		cfg.UseTestKey != want.UseTestKey || len(cfg.VerificationKey) != 0 || len(cfg.CORSOrigins) != 0 {
		t.Fatalf("template round trip mismatch:\n got %+v\nwant %+v", cfg, want)
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
