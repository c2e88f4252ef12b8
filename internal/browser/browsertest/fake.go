// Package browsertest provides an in-memory browser.Launcher for tests.
// Pages record every interaction as a readable action string such as
// "click //div[@id='x']" or "type //input hi".
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cronos/internal/browser"
)

// PNG is a minimal valid PNG payload returned by fake screenshots.
var PNG = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Launcher hands out fake pages.
type Launcher struct {
	mu      sync.Mutex
	pages   []*Page
	options []browser.LaunchOptions

	// Err fails every Launch when set.
	Err error
	// Setup configures each page before it is returned.
	Setup func(p *Page)
}

// NewLauncher returns a launcher whose pages run setup.
func NewLauncher(setup func(p *Page)) *Launcher {
	return &Launcher{Setup: setup}
}

// Launch implements browser.Launcher.
func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	p := NewPage()
	if l.Setup != nil {
		l.Setup(p)
	}
	l.pages = append(l.pages, p)
	l.options = append(l.options, opts)
	return p, nil
}

// Launches returns how many pages were launched.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pages)
}

// Last returns the most recent page, or nil.
func (l *Launcher) Last() *Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pages) == 0 {
		return nil
	}
	return l.pages[len(l.pages)-1]
}

// Options returns the launch options of every launch in order.
func (l *Launcher) Options() []browser.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.LaunchOptions(nil), l.options...)
}

// Page is a scripted browser page.
type Page struct {
	mu       sync.Mutex
	present  map[browser.Locator]bool
	failures map[string]error
	hooks    map[string]func(p *Page)
	actions  []string
	cookies  []browser.Cookie
	quits    int
	url      string
}

// NewPage returns an empty page.
func NewPage() *Page {
	return &Page{
		present:  make(map[browser.Locator]bool),
		failures: make(map[string]error),
		hooks:    make(map[string]func(p *Page)),
	}
}

// Show makes locators match.
func (p *Page) Show(locs ...browser.Locator) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range locs {
		p.present[l] = true
	}
	return p
}

// Hide makes locators stop matching.
func (p *Page) Hide(locs ...browser.Locator) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range locs {
		delete(p.present, l)
	}
	return p
}

// Fail makes op on loc return err. Ops: navigate, reload, click, type, press,
// clear, setfiles, screenshot, cookies, setcookies, clearcookies, quit.
// Page-level ops ignore loc.
func (p *Page) Fail(op string, loc browser.Locator, err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[key(op, loc)] = err
	return p
}

// On runs fn after op on loc succeeds.
func (p *Page) On(op string, loc browser.Locator, fn func(p *Page)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks[key(op, loc)] = fn
	return p
}

// SetJar replaces the cookie jar without recording an action.
func (p *Page) SetJar(cookies []browser.Cookie) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = append([]browser.Cookie(nil), cookies...)
}

// Jar returns the cookie jar.
func (p *Page) Jar() []browser.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Cookie(nil), p.cookies...)
}

// Actions returns the recorded interactions in order.
func (p *Page) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

// Quits returns how often Quit was called.
func (p *Page) Quits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quits
}

// URL returns the last navigated URL.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func key(op string, loc browser.Locator) string {
	if loc == "" {
		return op
	}
	return op + " " + string(loc)
}

// do records an action and returns its scripted failure, running the hook
// on success. The hook runs without the page lock held.
func (p *Page) do(op string, loc browser.Locator, arg string) error {
	p.mu.Lock()
	entry := key(op, loc)
	if arg != "" {
		entry += " " + arg
	}
	p.actions = append(p.actions, entry)
	err := p.failures[key(op, loc)]
	hook := p.hooks[key(op, loc)]
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) Navigate(url string) error {
	if err := p.do("navigate", "", url); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *Page) Reload() error {
	return p.do("reload", "", "")
}

func (p *Page) Find(loc browser.Locator) (browser.Element, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.present[loc] {
		return &Element{page: p, loc: loc}, true, nil
	}
	return nil, false, nil
}

func (p *Page) WaitFor(ctx context.Context, loc browser.Locator, timeout time.Duration) (browser.Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		if el, ok, _ := p.Find(loc); ok {
			return el, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%s after %s: %w", loc, timeout, browser.ErrElementNotFound)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (p *Page) Cookies() ([]browser.Cookie, error) {
	if err := p.do("cookies", "", ""); err != nil {
		return nil, err
	}
	return p.Jar(), nil
}

func (p *Page) SetCookies(cookies []browser.Cookie) error {
	if err := p.do("setcookies", "", fmt.Sprint(len(cookies))); err != nil {
		return err
	}
	p.mu.Lock()
	p.cookies = append(p.cookies, cookies...)
	p.mu.Unlock()
	return nil
}

func (p *Page) ClearCookies() error {
	if err := p.do("clearcookies", "", ""); err != nil {
		return err
	}
	p.mu.Lock()
	p.cookies = nil
	p.mu.Unlock()
	return nil
}

func (p *Page) Quit() error {
	p.mu.Lock()
	p.quits++
	p.mu.Unlock()
	return p.do("quit", "", "")
}

// Element is a fake located node.
type Element struct {
	page *Page
	loc  browser.Locator
}

func (e *Element) Click() error {
	return e.page.do("click", e.loc, "")
}

func (e *Element) Type(text string) error {
	return e.page.do("type", e.loc, text)
}

func (e *Element) Press(k browser.Key) error {
	return e.page.do("press", e.loc, k.String())
}

func (e *Element) Clear() error {
	return e.page.do("clear", e.loc, "")
}

func (e *Element) SetFiles(paths ...string) error {
	arg := ""
	for i, path := range paths {
		if i > 0 {
			arg += ","
		}
		arg += path
	}
	return e.page.do("setfiles", e.loc, arg)
}

func (e *Element) Screenshot() ([]byte, error) {
	if err := e.page.do("screenshot", e.loc, ""); err != nil {
		return nil, err
	}
	return PNG, nil
}

var _ browser.Launcher = (*Launcher)(nil)
var _ browser.Page = (*Page)(nil)
var _ browser.Element = (*Element)(nil)

// ErrBoom is a generic scripted failure.
var ErrBoom = errors.New("boom")
