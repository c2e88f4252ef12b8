package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all cronos configuration.
type Config struct {
	// Session lifecycle: directories, target client and login waits
	Sessions SessionsConfig `yaml:"sessions"`

	// Browser process settings
	Browser BrowserConfig `yaml:"browser"`

	// VPN stub
	VPN VPNConfig `yaml:"vpn"`

	// Message orchestration delays
	Messaging MessagingConfig `yaml:"messaging"`

	// XPath locators of the target web client
	Locators LocatorsConfig `yaml:"locators"`

	// Proxy pool
	Proxy ProxyConfig `yaml:"proxy"`

	// Send/login journal
	Journal JournalConfig `yaml:"journal"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// JournalConfig configures the SQLite journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sessions: SessionsConfig{
			Dir:              "sessions",
			QRDir:            "qr_codes",
			TargetURL:        "https://web.whatsapp.com/",
			LoginWait:        "50s",
			StatusWait:       "20s",
			PollInterval:     "500ms",
			CloseTimeout:     "5m",
			ProxySettle:      "5s",
			CookieSuffix:     "_cookies.json",
			MetadataSuffix:   "_session_metadata.json",
			QRSuffix:         "_qr_code.png",
			ProfileDirectory: "Default",
		},

		Browser: BrowserConfig{
			Headless:          false,
			NavigationTimeout: "60s",
			Flags: []string{
				"--disable-blink-features=AutomationControlled",
				"--no-sandbox",
				"--disable-dev-shm-usage",
				"--disable-extensions",
				"--disable-infobars",
			},
		},

		VPN: VPNConfig{
			Enabled:      false,
			ConnectDelay: "5s",
		},

		Messaging: MessagingConfig{
			Wait:           "10s",
			Settle:         "5s",
			OpenSettle:     "3s",
			KeystrokePause: "1s",
			TextSettle:     "20s",
			ConfirmPause:   "2s",
		},

		Locators: DefaultLocators(),

		Proxy: ProxyConfig{
			Strategy: "round_robin",
		},

		Journal: JournalConfig{
			Enabled: true,
			Path:    "data/cronos.db",
		},

		Server: ServerConfig{
			Addr: ":8080",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// A .env file in the working directory is applied before environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// .env is optional
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("CRONOS_SESSIONS_DIR"); dir != "" {
		c.Sessions.Dir = dir
	}
	if dir := os.Getenv("CRONOS_QR_DIR"); dir != "" {
		c.Sessions.QRDir = dir
	}
	if url := os.Getenv("CRONOS_TARGET_URL"); url != "" {
		c.Sessions.TargetURL = url
	}
	if v := os.Getenv("CRONOS_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if bin := os.Getenv("CRONOS_BROWSER_BIN"); bin != "" {
		c.Browser.Bin = bin
	}

	if path := os.Getenv("CRONOS_PROXY_FILE"); path != "" {
		c.Proxy.File = path
	}
	if list := os.Getenv("CRONOS_PROXIES"); list != "" {
		c.Proxy.Proxies = splitList(list)
	}

	if user := os.Getenv("CRONOS_VPN_USERNAME"); user != "" {
		c.VPN.Username = user
	}
	if pass := os.Getenv("CRONOS_VPN_PASSWORD"); pass != "" {
		c.VPN.Password = pass
	}

	if path := os.Getenv("CRONOS_JOURNAL"); path != "" {
		c.Journal.Path = path
	}
	if addr := os.Getenv("CRONOS_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("CRONOS_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Sessions.Dir) == "" {
		return fmt.Errorf("sessions.dir must be set")
	}
	if strings.TrimSpace(c.Sessions.QRDir) == "" {
		return fmt.Errorf("sessions.qr_dir must be set")
	}
	if strings.TrimSpace(c.Sessions.TargetURL) == "" {
		return fmt.Errorf("sessions.target_url must be set")
	}

	waits := map[string]string{
		"sessions.login_wait":    c.Sessions.LoginWait,
		"sessions.status_wait":   c.Sessions.StatusWait,
		"sessions.close_timeout": c.Sessions.CloseTimeout,
	}
	for name, raw := range waits {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, raw)
		}
	}

	validStrategy := false
	for _, s := range ValidStrategies {
		if c.Proxy.Strategy == s {
			validStrategy = true
			break
		}
	}
	if !validStrategy {
		return fmt.Errorf("invalid proxy strategy: %s (valid: %v)", c.Proxy.Strategy, ValidStrategies)
	}

	return nil
}
