package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Sessions.TargetURL != "https://web.whatsapp.com/" {
		t.Errorf("expected TargetURL=https://web.whatsapp.com/, got %s", cfg.Sessions.TargetURL)
	}
	if cfg.Proxy.Strategy != StrategyRoundRobin {
		t.Errorf("expected Strategy=round_robin, got %s", cfg.Proxy.Strategy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("CRONOS_SESSIONS_DIR", "")
	t.Setenv("CRONOS_TARGET_URL", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Sessions.Dir = "/var/lib/cronos/sessions"
	cfg.Sessions.CloseTimeout = "90s"
	cfg.Proxy.Proxies = []string{"http://10.0.0.1:3128", "socks5://10.0.0.2:1080"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Sessions.Dir != "/var/lib/cronos/sessions" {
		t.Errorf("expected Dir=/var/lib/cronos/sessions, got %s", loaded.Sessions.Dir)
	}
	if loaded.GetCloseTimeout() != 90*time.Second {
		t.Errorf("expected CloseTimeout=90s, got %s", loaded.GetCloseTimeout())
	}
	if len(loaded.Proxy.Proxies) != 2 {
		t.Errorf("expected 2 proxies, got %d", len(loaded.Proxy.Proxies))
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("CRONOS_SESSIONS_DIR", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sessions.Dir != "sessions" {
		t.Errorf("expected default Dir=sessions, got %s", cfg.Sessions.Dir)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sessions: [unterminated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Proxy.Strategy = "sticky"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid strategy")
	}

	cfg = DefaultConfig()
	cfg.Sessions.LoginWait = "0s"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for zero login wait")
	}

	cfg = DefaultConfig()
	cfg.Sessions.Dir = " "
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for empty sessions dir")
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.GetLoginWait() != 50*time.Second {
		t.Errorf("GetLoginWait=%s, want 50s", cfg.GetLoginWait())
	}
	if cfg.GetStatusWait() != 20*time.Second {
		t.Errorf("GetStatusWait=%s, want 20s", cfg.GetStatusWait())
	}
	if cfg.GetCloseTimeout() != 5*time.Minute {
		t.Errorf("GetCloseTimeout=%s, want 5m", cfg.GetCloseTimeout())
	}

	// Unparseable values fall back
	cfg.Sessions.StatusWait = "soon"
	if cfg.GetStatusWait() != 20*time.Second {
		t.Errorf("GetStatusWait fallback=%s, want 20s", cfg.GetStatusWait())
	}
	cfg.Messaging.TextSettle = ""
	if cfg.GetTextSettle() != 20*time.Second {
		t.Errorf("GetTextSettle fallback=%s, want 20s", cfg.GetTextSettle())
	}
}

func TestConfig_Paths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sessions.Dir = "/data/sessions"
	cfg.Sessions.QRDir = "/data/qr"

	cases := map[string]string{
		cfg.SessionDir("5511999"):   "/data/sessions/5511999",
		cfg.CookiePath("5511999"):   "/data/sessions/5511999/5511999_cookies.json",
		cfg.MetadataPath("5511999"): "/data/sessions/5511999/5511999_session_metadata.json",
		cfg.ProfilePath("5511999"):  "/data/sessions/5511999/profile",
		cfg.QRPath("5511999"):       "/data/qr/5511999_qr_code.png",
	}
	for got, want := range cases {
		if filepath.ToSlash(got) != want {
			t.Errorf("path=%q, want %q", got, want)
		}
	}
}
