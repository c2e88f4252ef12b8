package session

import (
	"context"
	"time"

	"cronos/internal/config"

	"go.uber.org/zap"
)

// VPN stands in for a VPN client. It logs the connection a real client would
// make and waits the configured delay; no tunnel is established.
type VPN struct {
	cfg    config.VPNConfig
	delay  time.Duration
	logger *zap.Logger
}

// NewVPN creates the stub from configuration.
func NewVPN(cfg *config.Config, logger *zap.Logger) *VPN {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VPN{cfg: cfg.VPN, delay: cfg.GetVPNConnectDelay(), logger: logger}
}

// Connect applies the VPN for one browser launch.
func (v *VPN) Connect(ctx context.Context) error {
	if !v.cfg.Enabled {
		v.logger.Debug("vpn requested but disabled in config")
		return nil
	}
	v.logger.Info("applying vpn",
		zap.String("server", v.cfg.Server),
		zap.Bool("authenticated", v.cfg.Username != ""),
		zap.Duration("delay", v.delay))
	return sleep(ctx, v.delay)
}

// sleep waits d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
