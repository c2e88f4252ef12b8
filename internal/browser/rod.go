package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// hideWebdriver runs before any page script.
const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

// RodLauncher launches a local Chrome through go-rod.
type RodLauncher struct {
	logger *zap.Logger
}

// NewRodLauncher creates a launcher. A nil logger disables logging.
func NewRodLauncher(logger *zap.Logger) *RodLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodLauncher{logger: logger}
}

// Launch starts Chrome with a persistent profile and opens one page.
func (l *RodLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.UserDataDir != "" {
		if err := os.MkdirAll(opts.UserDataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
	}

	launch := launcher.New().Headless(opts.Headless).NoSandbox(true)
	if opts.Bin != "" {
		launch = launch.Bin(opts.Bin)
	}
	if opts.UserDataDir != "" {
		launch = launch.UserDataDir(opts.UserDataDir)
	}
	if opts.ProfileDirectory != "" {
		launch = launch.ProfileDir(opts.ProfileDirectory)
	}
	launch = launch.Delete(flags.Flag("enable-automation"))
	for _, rawFlag := range opts.Flags {
		name, val, hasVal := SplitFlag(rawFlag)
		if hasVal {
			launch = launch.Set(flags.Flag(name), val)
		} else {
			launch = launch.Set(flags.Flag(name))
		}
	}

	var username, password string
	if opts.Proxy != "" {
		host, user, pass, err := splitProxy(opts.Proxy)
		if err != nil {
			return nil, err
		}
		launch = launch.Proxy(host)
		username, password = user, pass
	}

	controlURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	// The browser outlives the call context, so it is not bound to ctx.
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		launch.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	if username != "" {
		go func() {
			if err := b.HandleAuth(username, password)(); err != nil {
				l.logger.Debug("proxy auth handler stopped", zap.Error(err))
			}
		}()
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		launch.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}
	if _, err := page.EvalOnNewDocument(hideWebdriver); err != nil {
		l.logger.Warn("failed to install webdriver shim", zap.Error(err))
	}

	navTimeout := opts.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}

	l.logger.Debug("browser launched",
		zap.String("control_url", controlURL),
		zap.String("profile", opts.UserDataDir),
		zap.Bool("proxied", opts.Proxy != ""))

	return &rodPage{
		launcher:   launch,
		browser:    b,
		page:       page,
		navTimeout: navTimeout,
	}, nil
}

// splitProxy separates credentials from a proxy URL. Chrome only accepts
// scheme://host:port on the command line.
func splitProxy(raw string) (host, user, pass string, err error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", "", fmt.Errorf("invalid proxy %q", raw)
	}
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	host = u.Host
	if u.Scheme != "" && u.Scheme != "http" {
		host = u.Scheme + "://" + u.Host
	}
	return host, user, pass, nil
}

type rodPage struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	page       *rod.Page
	navTimeout time.Duration
}

func (p *rodPage) Navigate(target string) error {
	page := p.page.Timeout(p.navTimeout)
	if err := page.Navigate(target); err != nil {
		return fmt.Errorf("navigate %s: %w", target, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", target, err)
	}
	return nil
}

func (p *rodPage) Reload() error {
	page := p.page.Timeout(p.navTimeout)
	if err := page.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return page.WaitLoad()
}

func (p *rodPage) Find(loc Locator) (Element, bool, error) {
	ok, el, err := p.page.HasX(string(loc))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &rodElement{el: el}, true, nil
}

func (p *rodPage) WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	el, err := p.page.Context(ctx).Timeout(timeout).ElementX(string(loc))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s after %s: %w", loc, timeout, ErrElementNotFound)
		}
		return nil, err
	}
	return &rodElement{el: el.CancelTimeout()}, nil
}

func (p *rodPage) Cookies() ([]Cookie, error) {
	raw, err := p.browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return cookies, nil
}

func (p *rodPage) SetCookies(cookies []Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		})
	}
	if len(params) == 0 {
		return nil
	}
	return p.browser.SetCookies(params)
}

func (p *rodPage) ClearCookies() error {
	// A nil slice clears every cookie of the browser.
	return p.browser.SetCookies(nil)
}

func (p *rodPage) Quit() error {
	var errs []error
	if err := p.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	if err := p.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	// Kill without Cleanup keeps the profile directory on disk.
	p.launcher.Kill()
	return errors.Join(errs...)
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click() error {
	err := e.el.Click(proto.InputMouseButtonLeft, 1)
	var covered *rod.CoveredError
	var hidden *rod.NotInteractableError
	if errors.As(err, &covered) || errors.As(err, &hidden) {
		return fmt.Errorf("%w: %v", ErrClickIntercepted, err)
	}
	return err
}

func (e *rodElement) Type(text string) error {
	return e.el.Input(text)
}

func (e *rodElement) Press(key Key) error {
	switch key {
	case KeyEnter:
		return e.el.Type(input.Enter)
	case KeyEscape:
		return e.el.Type(input.Escape)
	case KeyBackspace:
		return e.el.Type(input.Backspace)
	default:
		return fmt.Errorf("unsupported key %s", key)
	}
}

func (e *rodElement) Clear() error {
	if err := e.el.SelectAllText(); err != nil {
		return fmt.Errorf("select text: %w", err)
	}
	return e.el.Type(input.Backspace)
}

func (e *rodElement) SetFiles(paths ...string) error {
	return e.el.SetFiles(paths)
}

func (e *rodElement) Screenshot() ([]byte, error) {
	return e.el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}
