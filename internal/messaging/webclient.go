package messaging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cronos/internal/browser"
	"cronos/internal/config"

	"go.uber.org/zap"
)

// Timings are the UI settle pauses of the web client.
type Timings struct {
	Wait           time.Duration
	OpenSettle     time.Duration
	KeystrokePause time.Duration
	TextSettle     time.Duration
	ConfirmPause   time.Duration
}

// TimingsFromConfig reads the messaging pauses of cfg.
func TimingsFromConfig(cfg *config.Config) Timings {
	return Timings{
		Wait:           cfg.GetMessagingWait(),
		OpenSettle:     cfg.GetOpenSettle(),
		KeystrokePause: cfg.GetKeystrokePause(),
		TextSettle:     cfg.GetTextSettle(),
		ConfirmPause:   cfg.GetConfirmPause(),
	}
}

// WebClient implements Chat on a browser page showing the web client.
type WebClient struct {
	page    browser.Page
	loc     config.LocatorsConfig
	timings Timings
	logger  *zap.Logger
}

// NewWebClient binds a chat driver to page.
func NewWebClient(page browser.Page, locators config.LocatorsConfig, timings Timings, logger *zap.Logger) *WebClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebClient{page: page, loc: locators, timings: timings, logger: logger}
}

func (w *WebClient) wait(ctx context.Context, loc string) (browser.Element, error) {
	return w.page.WaitFor(ctx, browser.Locator(loc), w.timings.Wait)
}

// contactRow returns the result row locator for name.
func (w *WebClient) contactRow(name string) browser.Locator {
	return browser.Locator(strings.ReplaceAll(w.loc.ContactRow, "{name}", xpathLiteral(name)))
}

// OpenByName searches for name and clicks the matching row. When the click
// is intercepted the search is submitted instead, provided the row is still
// listed.
func (w *WebClient) OpenByName(ctx context.Context, name string) error {
	search, err := w.wait(ctx, w.loc.SearchBox)
	if err != nil {
		return fmt.Errorf("search box: %w", err)
	}
	if err := search.Clear(); err != nil {
		return fmt.Errorf("clear search: %w", err)
	}
	if err := search.Type(name); err != nil {
		return fmt.Errorf("type contact name: %w", err)
	}

	rowLoc := w.contactRow(name)
	row, err := w.page.WaitFor(ctx, rowLoc, w.timings.Wait)
	if err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			return fmt.Errorf("%w: %q", ErrContactNotFound, name)
		}
		return err
	}

	if err := row.Click(); err != nil {
		if !errors.Is(err, browser.ErrClickIntercepted) {
			return fmt.Errorf("click contact: %w", err)
		}
		w.logger.Debug("contact click intercepted, submitting search", zap.String("contact", name))
		_, ok, ferr := w.page.Find(rowLoc)
		if ferr != nil {
			return fmt.Errorf("relocate contact: %w", ferr)
		}
		if !ok {
			return fmt.Errorf("%w: %q", ErrContactNotFound, name)
		}
		if err := search.Press(browser.KeyEnter); err != nil {
			return fmt.Errorf("submit search: %w", err)
		}
	}

	w.logger.Debug("chat opened", zap.String("contact", name))
	return sleep(ctx, w.timings.OpenSettle)
}

// OpenByAddress starts a new chat with a raw number.
func (w *WebClient) OpenByAddress(ctx context.Context, address string) error {
	button, err := w.wait(ctx, w.loc.NewChatButton)
	if err != nil {
		return fmt.Errorf("new chat button: %w", err)
	}
	if err := button.Click(); err != nil {
		return fmt.Errorf("click new chat: %w", err)
	}

	input, err := w.wait(ctx, w.loc.NewChatPhoneBox)
	if err != nil {
		return fmt.Errorf("phone input: %w", err)
	}
	if err := input.Type(address); err != nil {
		return fmt.Errorf("type number: %w", err)
	}
	if err := sleep(ctx, w.timings.ConfirmPause); err != nil {
		return err
	}
	if err := input.Press(browser.KeyEnter); err != nil {
		return fmt.Errorf("submit number: %w", err)
	}

	w.logger.Debug("chat opened", zap.String("address", address))
	return sleep(ctx, w.timings.ConfirmPause)
}

// SendText types text into the message box and submits it.
func (w *WebClient) SendText(ctx context.Context, text string) error {
	box, err := w.wait(ctx, w.loc.MessageBox)
	if err != nil {
		return fmt.Errorf("message box: %w", err)
	}
	if err := box.Type(text); err != nil {
		return fmt.Errorf("type message: %w", err)
	}
	if err := sleep(ctx, w.timings.KeystrokePause); err != nil {
		return err
	}
	if err := box.Press(browser.KeyEnter); err != nil {
		return fmt.Errorf("submit message: %w", err)
	}
	return sleep(ctx, w.timings.TextSettle)
}

// SendAttachment uploads the file at path through the attach menu.
func (w *WebClient) SendAttachment(ctx context.Context, kind Kind, path string) error {
	var input string
	switch kind {
	case KindImage:
		input = w.loc.ImageInput
	case KindAudio:
		input = w.loc.AudioInput
	case KindDocument:
		input = w.loc.DocumentInput
	default:
		return fmt.Errorf("unknown attachment kind %q", kind)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("%s attachment: %w", kind, err)
	}

	attach, err := w.wait(ctx, w.loc.AttachButton)
	if err != nil {
		return fmt.Errorf("attach button: %w", err)
	}
	if err := attach.Click(); err != nil {
		return fmt.Errorf("click attach: %w", err)
	}

	fileInput, err := w.wait(ctx, input)
	if err != nil {
		return fmt.Errorf("%s input: %w", kind, err)
	}
	if err := fileInput.SetFiles(abs); err != nil {
		return fmt.Errorf("set %s file: %w", kind, err)
	}

	send, err := w.wait(ctx, w.loc.SendButton)
	if err != nil {
		return fmt.Errorf("send button: %w", err)
	}
	if err := send.Click(); err != nil {
		return fmt.Errorf("click send: %w", err)
	}
	return nil
}

// Exit clears the search box and leaves the chat with Escape.
func (w *WebClient) Exit(ctx context.Context) error {
	search, err := w.wait(ctx, w.loc.SearchBox)
	if err != nil {
		return fmt.Errorf("search box: %w", err)
	}
	if err := search.Clear(); err != nil {
		return fmt.Errorf("clear search: %w", err)
	}
	return search.Press(browser.KeyEscape)
}

// xpathLiteral quotes s as an XPath 1.0 string literal.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

var _ Chat = (*WebClient)(nil)
