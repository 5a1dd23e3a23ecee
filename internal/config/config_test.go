package config

import (
	"os"
	"path/filepath"
	"testing"
)

// chdir changes into dir for the duration of the test, restoring the
// previous working directory on cleanup (stand-in for t.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore chdir: %v", err)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg := Load()
	if cfg.DataDir != "." {
		t.Fatalf("data dir %q", cfg.DataDir)
	}
	if cfg.SessionsDir != filepath.Join(".", "sessions") {
		t.Fatalf("sessions dir %q", cfg.SessionsDir)
	}
	if len(cfg.Channels) != 1 || cfg.Channels[0] != "terminal" {
		t.Fatalf("channels %v", cfg.Channels)
	}
	if cfg.CompactThreshold != 0 {
		t.Fatalf("compact threshold %d", cfg.CompactThreshold)
	}
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AGENTD_DATA_DIR", "/var/lib/agentd")
	t.Setenv("AGENTD_CHANNELS", "terminal, websocket")
	t.Setenv("AGENTD_COMPACT_THRESHOLD", "50000")
	t.Setenv("AGENTD_PROVIDER_MODEL", "gpt-4o")

	cfg := Load()
	if cfg.DataDir != "/var/lib/agentd" {
		t.Fatalf("data dir %q", cfg.DataDir)
	}
	if cfg.SessionsDir != "/var/lib/agentd/sessions" {
		t.Fatalf("sessions dir %q", cfg.SessionsDir)
	}
	if len(cfg.Channels) != 2 || cfg.Channels[1] != "websocket" {
		t.Fatalf("channels %v", cfg.Channels)
	}
	if cfg.CompactThreshold != 50000 {
		t.Fatalf("compact threshold %d", cfg.CompactThreshold)
	}
	if cfg.ProviderModel != "gpt-4o" {
		t.Fatalf("model %q", cfg.ProviderModel)
	}
}

func TestLoadBadIntFallsBack(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AGENTD_COMPACT_THRESHOLD", "lots")
	cfg := Load()
	if cfg.CompactThreshold != 0 {
		t.Fatalf("compact threshold %d, want fallback 0", cfg.CompactThreshold)
	}
}

func TestDotEnvDoesNotOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	dotenv := "AGENTD_PROVIDER_MODEL=from-dotenv\nAGENTD_LOG_LEVEL=\"debug\"\n# comment\nexport AGENTD_WS_ADDR=:9999\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("AGENTD_PROVIDER_MODEL", "from-env")

	cfg := Load()
	if cfg.ProviderModel != "from-env" {
		t.Fatalf("model %q, real env must win", cfg.ProviderModel)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level %q, quotes not stripped", cfg.LogLevel)
	}
	if cfg.WSAddr != ":9999" {
		t.Fatalf("ws addr %q, export prefix not handled", cfg.WSAddr)
	}
}
