package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/apductl/internal/testutil/testlog"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"serve", "send", "config"} {
		found, _, err := cmd.Find([]string{name})
		if err != nil || found.Name() != name {
			t.Fatalf("missing subcommand %q: %v", name, err)
		}
	}
	if cmd.PersistentFlags().Lookup("verbose") == nil || cmd.PersistentFlags().Lookup("config") == nil {
		t.Fatalf("expected persistent verbose and config flags")
	}
}

func TestConfigInitThenValidate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "apductl.toml")

	out, err := execute(t, "config", "init", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "wrote") {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, err := execute(t, "config", "init", path); err == nil {
		t.Fatalf("expected overwrite guard")
	}
	if _, err := execute(t, "config", "init", "--force", path); err != nil {
		t.Fatalf("forced init: %v", err)
	}

	out, err = execute(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "validated") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte(`auto_approve = "sometimes"`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := execute(t, "config", "validate", path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestSendRequiresScript(t *testing.T) {
	testlog.Start(t)
	if _, err := execute(t, "send"); err == nil {
		t.Fatalf("expected missing --script error")
	}
}

func TestServeRejectsInvalidOverride(t *testing.T) {
	testlog.Start(t)
	if _, err := execute(t, "serve", "--auto-approve", "sometimes"); err == nil {
		t.Fatalf("expected invalid auto-approve error")
	}
}
