// Package session owns one identity's authentication lifecycle: the browser
// handle, the login state machine, and the cookie and metadata files that let
// a restart skip the QR scan.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cronos/internal/browser"
	"cronos/internal/config"

	"go.uber.org/zap"
)

// Params are the caller-supplied attributes of a new session. Persisted
// metadata overrides Proxy and UseVPN.
type Params struct {
	Identity string
	UseVPN   bool
	Proxy    string
}

// Session is one identity's browser session.
//
// Operations hold the session lock for their full duration, including browser
// waits. Close cancels in-flight waits before taking the lock.
type Session struct {
	mu       sync.Mutex
	identity string
	useVPN   bool
	proxy    string

	cfg      *config.Config
	launcher browser.Launcher
	vpn      *VPN
	logger   *zap.Logger

	page  browser.Page
	state State
	last  LoginStatus

	life context.Context
	kill context.CancelFunc
}

// ValidateIdentity rejects identities that cannot name a directory.
func ValidateIdentity(identity string) error {
	switch {
	case strings.TrimSpace(identity) == "":
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	case identity == "." || identity == "..":
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	case strings.ContainsAny(identity, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidIdentity, identity)
	}
	return nil
}

// New constructs a session without opening a browser. Metadata persisted by a
// previous run replaces the proxy and VPN flag given in p.
func New(p Params, cfg *config.Config, launcher browser.Launcher, logger *zap.Logger) (*Session, error) {
	if err := ValidateIdentity(p.Identity); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("identity", p.Identity))

	life, kill := context.WithCancel(context.Background())
	s := &Session{
		identity: p.Identity,
		useVPN:   p.UseVPN,
		proxy:    p.Proxy,
		cfg:      cfg,
		launcher: launcher,
		vpn:      NewVPN(cfg, logger),
		logger:   logger,
		state:    StateUninitialized,
		life:     life,
		kill:     kill,
	}

	md, ok, err := LoadMetadata(cfg.MetadataPath(p.Identity))
	switch {
	case err != nil:
		logger.Warn("ignoring unreadable session metadata", zap.Error(err))
	case ok:
		s.proxy = md.Proxy
		s.useVPN = md.UseVPN
		logger.Debug("session metadata loaded",
			zap.String("proxy", md.Proxy),
			zap.Bool("use_vpn", md.UseVPN))
	}

	return s, nil
}

// Identity returns the session key.
func (s *Session) Identity() string { return s.identity }

// Proxy returns the proxy applied at the next launch.
func (s *Session) Proxy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proxy
}

// UseVPN reports whether launches go through the VPN stub.
func (s *Session) UseVPN() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useVPN
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastStatus returns the most recent login observation.
func (s *Session) LastStatus() LoginStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Page returns the browser page, or nil when the session is not open.
func (s *Session) Page() browser.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// bind derives a context that also ends when the session is closed.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// ChangeProxy persists proxy and, when the session is open, restarts the
// browser through it and restores cookies. The login state is kept.
func (s *Session) ChangeProxy(ctx context.Context, proxy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ErrSessionClosed
	}

	s.proxy = proxy
	if err := s.saveMetadataLocked(); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	s.logger.Info("proxy changed", zap.String("proxy", proxy))

	if s.page == nil {
		return nil
	}

	ctx, done := s.bind(ctx)
	defer done()

	if err := s.page.Quit(); err != nil {
		s.logger.Warn("error closing browser before proxy change", zap.Error(err))
	}
	s.page = nil

	if err := s.launchLocked(ctx); err != nil {
		s.closeLocked()
		return err
	}
	if err := sleep(ctx, s.cfg.GetProxySettle()); err != nil {
		s.closeLocked()
		return err
	}
	if _, err := s.restoreCookiesLocked(); err != nil {
		s.closeLocked()
		return err
	}
	return nil
}

// Close releases the browser. Closing a closed session is a no-op.
func (s *Session) Close() error {
	s.kill()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.state == StateClosed {
		return nil
	}
	var err error
	if s.page != nil {
		err = s.page.Quit()
		if err != nil {
			s.logger.Error("error closing browser", zap.Error(err))
		}
	}
	s.page = nil
	s.state = StateClosed
	s.kill()
	s.logger.Info("session closed")
	return err
}

// Logout clears browser cookies, closes the session and deletes the cookie
// file and browser profile so the next login requires a QR scan.
func (s *Session) Logout() error {
	s.kill()
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.page != nil {
		if err := s.page.ClearCookies(); err != nil {
			errs = append(errs, fmt.Errorf("clear cookies: %w", err))
		}
	}
	if err := s.closeLocked(); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(s.cfg.CookiePath(s.identity)); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove cookies: %w", err))
	}
	if err := os.RemoveAll(s.cfg.ProfilePath(s.identity)); err != nil {
		errs = append(errs, fmt.Errorf("remove profile: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error("logout incomplete", zap.Error(err))
	} else {
		s.logger.Info("logged out")
	}
	return err
}

// DestroySession closes the session and deletes its persisted directory and
// QR capture. The session is closed even when deletion fails.
func (s *Session) DestroySession() error {
	var errs []error
	if err := s.Close(); err != nil {
		errs = append(errs, err)
	}

	dir := s.cfg.SessionDir(s.identity)
	if err := os.RemoveAll(dir); err != nil {
		errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
	}
	if err := os.Remove(s.cfg.QRPath(s.identity)); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove qr: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error("session destroy incomplete", zap.Error(err))
	} else {
		s.logger.Info("session destroyed", zap.String("dir", filepath.Clean(dir)))
	}
	return err
}

func (s *Session) saveMetadataLocked() error {
	return SaveMetadata(s.cfg.MetadataPath(s.identity), Metadata{
		PhoneNumber: s.identity,
		Proxy:       s.proxy,
		UseVPN:      s.useVPN,
	})
}
