package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_Sessions(t *testing.T) {
	t.Run("directories and target", func(t *testing.T) {
		t.Setenv("CRONOS_SESSIONS_DIR", "/tmp/s")
		t.Setenv("CRONOS_QR_DIR", "/tmp/q")
		t.Setenv("CRONOS_TARGET_URL", "http://localhost:9000/")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/s", cfg.Sessions.Dir)
		assert.Equal(t, "/tmp/q", cfg.Sessions.QRDir)
		assert.Equal(t, "http://localhost:9000/", cfg.Sessions.TargetURL)
	})

	t.Run("empty values do not override", func(t *testing.T) {
		t.Setenv("CRONOS_SESSIONS_DIR", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "sessions", cfg.Sessions.Dir)
	})
}

func TestEnvOverrides_Browser(t *testing.T) {
	t.Run("headless parses booleans", func(t *testing.T) {
		t.Setenv("CRONOS_HEADLESS", "true")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.True(t, cfg.Browser.Headless)
	})

	t.Run("headless ignores garbage", func(t *testing.T) {
		t.Setenv("CRONOS_HEADLESS", "maybe")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.False(t, cfg.Browser.Headless)
	})
}

func TestEnvOverrides_Proxy(t *testing.T) {
	t.Setenv("CRONOS_PROXIES", " http://a:1 ,, socks5://b:2 ")
	t.Setenv("CRONOS_PROXY_FILE", "/etc/cronos/proxies.txt")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, []string{"http://a:1", "socks5://b:2"}, cfg.Proxy.Proxies)
	assert.Equal(t, "/etc/cronos/proxies.txt", cfg.Proxy.File)
}

func TestEnvOverrides_Misc(t *testing.T) {
	t.Setenv("CRONOS_VPN_USERNAME", "vpnuser")
	t.Setenv("CRONOS_VPN_PASSWORD", "vpnpass")
	t.Setenv("CRONOS_JOURNAL", "/tmp/j.db")
	t.Setenv("CRONOS_ADDR", "127.0.0.1:9999")
	t.Setenv("CRONOS_LOG_LEVEL", "debug")

	cfg := &Config{}
	cfg.applyEnvOverrides()

	assert.Equal(t, "vpnuser", cfg.VPN.Username)
	assert.Equal(t, "vpnpass", cfg.VPN.Password)
	assert.Equal(t, "/tmp/j.db", cfg.Journal.Path)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
