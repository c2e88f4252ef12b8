package config

import "time"

// Proxy selection strategies.
const (
	StrategyRoundRobin = "round_robin"
	StrategyRandom     = "random"
)

// ValidStrategies lists the supported proxy strategies.
var ValidStrategies = []string{StrategyRoundRobin, StrategyRandom}

// ProxyConfig configures the proxy pool.
type ProxyConfig struct {
	Proxies        []string `yaml:"proxies"`
	File           string   `yaml:"file"`             // one endpoint per line
	Watch          bool     `yaml:"watch"`            // reload File on change
	Strategy       string   `yaml:"strategy"`         // round_robin, random
	AssignOnCreate bool     `yaml:"assign_on_create"` // give new sessions a pool entry
	CheckTimeout   string   `yaml:"check_timeout"`
}

// GetProxyCheckTimeout returns the reachability probe timeout.
func (c *Config) GetProxyCheckTimeout() time.Duration {
	return parseDuration(c.Proxy.CheckTimeout, 10*time.Second)
}
