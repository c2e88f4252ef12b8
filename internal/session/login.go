package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cronos/internal/browser"

	"go.uber.org/zap"
)

// EnsureLoggedIn opens the browser, restores persisted cookies and waits for
// either the authenticated panel or the login QR code. It never waits for a
// human scan: a visible QR code is captured and reported as qr_required.
//
// Any error closes the session.
func (s *Session) EnsureLoggedIn(ctx context.Context) (LoginStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return Failed(ErrSessionClosed), ErrSessionClosed
	case StateUninitialized:
	default:
		return s.last, ErrSessionOpen
	}

	ctx, done := s.bind(ctx)
	defer done()

	status, err := s.ensureLocked(ctx)
	if err != nil {
		s.logger.Error("login detection failed", zap.Error(err))
		s.closeLocked()
		status = Failed(err)
	}
	s.last = status
	return status, err
}

func (s *Session) ensureLocked(ctx context.Context) (LoginStatus, error) {
	s.state = StateOpening

	if err := s.launchLocked(ctx); err != nil {
		return LoginStatus{}, err
	}
	if _, err := s.restoreCookiesLocked(); err != nil {
		return LoginStatus{}, err
	}

	signals := []browser.Locator{
		browser.Locator(s.cfg.Locators.LoggedIn),
		browser.Locator(s.cfg.Locators.QRCode),
	}
	idx, _, err := browser.WaitForAny(ctx, s.page, signals, s.cfg.GetLoginWait(), s.cfg.GetPollInterval())
	if err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			return LoginStatus{}, fmt.Errorf("%w after %s", ErrLoginDetectionTimeout, s.cfg.GetLoginWait())
		}
		return LoginStatus{}, err
	}

	if idx == 0 {
		s.markAuthenticatedLocked()
		return Authenticated(), nil
	}

	path, err := s.captureQRLocked()
	if err != nil {
		return LoginStatus{}, err
	}
	s.state = StateAwaitingLogin
	s.logger.Info("qr code required", zap.String("qr_code", path))
	return Pending(path), nil
}

// UpdateLoginStatus re-polls an open session. It never returns an error:
// failures are reported as a status of error so supervision loops keep going.
func (s *Session) UpdateLoginStatus(ctx context.Context) LoginStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.updateLocked(ctx)
	s.last = status
	return status
}

func (s *Session) updateLocked(ctx context.Context) LoginStatus {
	switch {
	case s.state == StateClosed:
		return Failed(ErrSessionClosed)
	case s.page == nil:
		return Failed(ErrSessionNotOpen)
	}

	ctx, done := s.bind(ctx)
	defer done()

	_, err := s.page.WaitFor(ctx, browser.Locator(s.cfg.Locators.LoggedIn), s.cfg.GetStatusWait())
	if err == nil {
		s.markAuthenticatedLocked()
		return Authenticated()
	}
	if !errors.Is(err, browser.ErrElementNotFound) {
		s.logger.Warn("status poll interrupted", zap.Error(err))
		return Failed(err)
	}

	// The code rotates while nobody scans it.
	path, err := s.captureQRLocked()
	if err != nil {
		s.logger.Warn("qr recapture failed", zap.Error(err))
		return Failed(err)
	}
	s.state = StateAwaitingLogin
	s.logger.Debug("still awaiting qr scan", zap.String("qr_code", path))
	return Pending(path)
}

// launchLocked starts the browser for this identity and navigates to the
// target client.
func (s *Session) launchLocked(ctx context.Context) error {
	if s.useVPN {
		if err := s.vpn.Connect(ctx); err != nil {
			return fmt.Errorf("vpn: %w", err)
		}
	}

	opts := browser.LaunchOptions{
		Bin:               s.cfg.Browser.Bin,
		UserDataDir:       s.cfg.ProfilePath(s.identity),
		ProfileDirectory:  s.cfg.Sessions.ProfileDirectory,
		Proxy:             s.proxy,
		Headless:          s.cfg.Browser.Headless,
		Flags:             s.cfg.Browser.Flags,
		NavigationTimeout: s.cfg.GetNavigationTimeout(),
	}
	page, err := s.launcher.Launch(ctx, opts)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	s.page = page

	if err := page.Navigate(s.cfg.Sessions.TargetURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	s.logger.Info("browser opened",
		zap.String("url", s.cfg.Sessions.TargetURL),
		zap.String("proxy", s.proxy),
		zap.Bool("use_vpn", s.useVPN))
	return nil
}

// restoreCookiesLocked applies the cookie file, if any, and reloads the page.
// Cookies the browser rejects are skipped.
func (s *Session) restoreCookiesLocked() (bool, error) {
	cookies, ok, err := LoadCookies(s.cfg.CookiePath(s.identity))
	if err != nil {
		s.logger.Warn("ignoring unreadable cookie file", zap.Error(err))
		return false, nil
	}
	if !ok {
		return false, nil
	}

	if err := s.page.ClearCookies(); err != nil {
		return false, fmt.Errorf("clear cookies: %w", err)
	}
	applied := 0
	for _, c := range cookies {
		if err := s.page.SetCookies([]browser.Cookie{c}); err != nil {
			s.logger.Debug("cookie rejected", zap.String("cookie", c.Name), zap.Error(err))
			continue
		}
		applied++
	}
	if err := s.page.Reload(); err != nil {
		return false, fmt.Errorf("reload: %w", err)
	}
	s.logger.Info("cookies restored", zap.Int("applied", applied), zap.Int("total", len(cookies)))
	return true, nil
}

// markAuthenticatedLocked records the authenticated state and persists the
// cookie jar and metadata. Persistence failures are logged only.
func (s *Session) markAuthenticatedLocked() {
	if s.state != StateAuthenticated {
		s.logger.Info("session authenticated")
	}
	s.state = StateAuthenticated

	cookies, err := s.page.Cookies()
	if err != nil {
		s.logger.Warn("failed to read cookies", zap.Error(err))
	} else if err := SaveCookies(s.cfg.CookiePath(s.identity), cookies); err != nil {
		s.logger.Warn("failed to save cookies", zap.Error(err))
	}
	if err := s.saveMetadataLocked(); err != nil {
		s.logger.Warn("failed to save metadata", zap.Error(err))
	}
}

// captureQRLocked screenshots the QR code to the configured directory and
// returns the absolute file path.
func (s *Session) captureQRLocked() (string, error) {
	el, ok, err := s.page.Find(browser.Locator(s.cfg.Locators.QRCode))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrQRCapture, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrQRCapture, browser.ErrElementNotFound)
	}
	png, err := el.Screenshot()
	if err != nil {
		return "", fmt.Errorf("%w: screenshot: %v", ErrQRCapture, err)
	}

	path := s.cfg.QRPath(s.identity)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrQRCapture, err)
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrQRCapture, err)
	}
	return path, nil
}
