package config

import (
	"path/filepath"
	"time"
)

// SessionsConfig configures per-identity sessions.
type SessionsConfig struct {
	Dir       string `yaml:"dir"`        // root of per-identity directories
	QRDir     string `yaml:"qr_dir"`     // QR captures
	TargetURL string `yaml:"target_url"` // web client entry point

	LoginWait    string `yaml:"login_wait"`    // first detection bound
	StatusWait   string `yaml:"status_wait"`   // re-poll bound
	PollInterval string `yaml:"poll_interval"` // signal polling cadence
	CloseTimeout string `yaml:"close_timeout"` // pending-login eviction
	ProxySettle  string `yaml:"proxy_settle"`  // pause after a proxy restart

	CookieSuffix     string `yaml:"cookie_suffix"`
	MetadataSuffix   string `yaml:"metadata_suffix"`
	QRSuffix         string `yaml:"qr_suffix"`
	ProfileDirectory string `yaml:"profile_directory"`
}

// BrowserConfig configures the automated browser process.
type BrowserConfig struct {
	Bin               string   `yaml:"bin"`
	Headless          bool     `yaml:"headless"`
	Flags             []string `yaml:"flags"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
}

// VPNConfig configures the VPN stub. No tunnel is established.
type VPNConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Server       string `yaml:"server"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	ConnectDelay string `yaml:"connect_delay"`
}

// GetLoginWait returns the initial login detection bound.
func (c *Config) GetLoginWait() time.Duration {
	return parseDuration(c.Sessions.LoginWait, 50*time.Second)
}

// GetStatusWait returns the status refresh bound.
func (c *Config) GetStatusWait() time.Duration {
	return parseDuration(c.Sessions.StatusWait, 20*time.Second)
}

// GetPollInterval returns how often login signals are checked.
func (c *Config) GetPollInterval() time.Duration {
	return parseDuration(c.Sessions.PollInterval, 500*time.Millisecond)
}

// GetCloseTimeout returns the pending-login eviction bound.
func (c *Config) GetCloseTimeout() time.Duration {
	return parseDuration(c.Sessions.CloseTimeout, 5*time.Minute)
}

// GetProxySettle returns the pause between a proxy restart and cookie restore.
func (c *Config) GetProxySettle() time.Duration {
	return parseDuration(c.Sessions.ProxySettle, 5*time.Second)
}

// GetNavigationTimeout returns the page navigation timeout.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 60*time.Second)
}

// GetVPNConnectDelay returns the simulated VPN connect delay.
func (c *Config) GetVPNConnectDelay() time.Duration {
	return parseDuration(c.VPN.ConnectDelay, 5*time.Second)
}

// SessionDir returns the persisted directory of an identity.
func (c *Config) SessionDir(identity string) string {
	return filepath.Join(c.Sessions.Dir, identity)
}

// CookiePath returns the cookie file of an identity.
func (c *Config) CookiePath(identity string) string {
	return filepath.Join(c.SessionDir(identity), identity+c.Sessions.CookieSuffix)
}

// MetadataPath returns the metadata file of an identity.
func (c *Config) MetadataPath(identity string) string {
	return filepath.Join(c.SessionDir(identity), identity+c.Sessions.MetadataSuffix)
}

// ProfilePath returns the browser user-data directory of an identity.
func (c *Config) ProfilePath(identity string) string {
	return filepath.Join(c.SessionDir(identity), "profile")
}

// QRPath returns where the QR capture of an identity is written.
func (c *Config) QRPath(identity string) string {
	return filepath.Join(c.Sessions.QRDir, identity+c.Sessions.QRSuffix)
}

// IsVPNEnabled returns whether the VPN stub is active.
func (c *Config) IsVPNEnabled() bool {
	return c.VPN.Enabled
}
