// Package browser is the narrow capability layer between cronos and an
// automated browser. Sessions and the message orchestrator only see the
// Page and Element interfaces; the go-rod driver lives in rod.go.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrElementNotFound is returned when a locator matches nothing in time.
	ErrElementNotFound = errors.New("element not found")
	// ErrClickIntercepted is returned when another element covers the click target.
	ErrClickIntercepted = errors.New("click intercepted")
)

// Locator is an XPath expression.
type Locator string

// Key is a special key understood by Element.Press.
type Key int

const (
	KeyEnter Key = iota + 1
	KeyEscape
	KeyBackspace
)

func (k Key) String() string {
	switch k {
	case KeyEnter:
		return "Enter"
	case KeyEscape:
		return "Escape"
	case KeyBackspace:
		return "Backspace"
	default:
		return fmt.Sprintf("Key(%d)", int(k))
	}
}

// Cookie is the persisted form of a browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"` // seconds since epoch, 0 for session cookies
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Element is a located node on the page.
type Element interface {
	Click() error
	Type(text string) error
	Press(key Key) error
	Clear() error
	SetFiles(paths ...string) error
	Screenshot() ([]byte, error)
}

// Page is one open browser window bound to a single profile.
type Page interface {
	Navigate(url string) error
	Reload() error
	// Find looks the locator up once without waiting.
	Find(loc Locator) (Element, bool, error)
	// WaitFor blocks until the locator matches or timeout elapses. A timeout
	// yields an error wrapping ErrElementNotFound.
	WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
	Cookies() ([]Cookie, error)
	SetCookies(cookies []Cookie) error
	ClearCookies() error
	// Quit releases the page and its browser process.
	Quit() error
}

// LaunchOptions describes one browser process.
type LaunchOptions struct {
	Bin               string
	UserDataDir       string
	ProfileDirectory  string
	Proxy             string // scheme://[user:pass@]host:port, empty for direct
	Headless          bool
	Flags             []string // extra --name[=value] switches
	NavigationTimeout time.Duration
}

// Launcher starts browser processes.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Page, error)
}

// WaitForAny polls page until one of locs matches and returns its index.
// It returns ErrElementNotFound when none appears within timeout.
func WaitForAny(ctx context.Context, page Page, locs []Locator, timeout, interval time.Duration) (int, Element, error) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for i, loc := range locs {
			el, ok, err := page.Find(loc)
			if err != nil {
				return -1, nil, fmt.Errorf("find %s: %w", loc, err)
			}
			if ok {
				return i, el, nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return -1, nil, fmt.Errorf("none of %s after %s: %w", joinLocators(locs), timeout, ErrElementNotFound)
			}
			return -1, nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func joinLocators(locs []Locator) string {
	parts := make([]string, len(locs))
	for i, l := range locs {
		parts[i] = string(l)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// SplitFlag parses "--name=value" into its parts.
func SplitFlag(raw string) (name, value string, hasValue bool) {
	flagStr := strings.TrimLeft(raw, "-")
	return strings.Cut(flagStr, "=")
}
