package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cronos/internal/session"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	loginVPN      bool
	loginInterval time.Duration
	loginWatch    bool
)

// loginCmd drives an identity to the logged-in state
var loginCmd = &cobra.Command{
	Use:   "login <identity>",
	Short: "Open a session and wait until its QR code is scanned",
	Long: `Opens (or restores) the session of a phone number and polls its login
status until it is logged in. While a scan is needed the QR code is written to
sessions.qr_dir and its path is printed after every poll.

Example:
  cronos login 5511999998888 --interval 10s --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&loginVPN, "vpn", false, "Route the session through the VPN")
	loginCmd.Flags().DurationVar(&loginInterval, "interval", 10*time.Second, "Delay between status polls")
	loginCmd.Flags().BoolVar(&loginWatch, "watch", false, "Show a live status view")
}

// pollFunc returns the current login status of one identity.
type pollFunc func(ctx context.Context) (session.LoginStatus, error)

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	identity := args[0]
	poll := func(ctx context.Context) (session.LoginStatus, error) {
		_, status, err := a.manager.GetSession(ctx, identity, loginVPN)
		return status, err
	}

	if loginWatch {
		return watchLogin(ctx, identity, loginInterval, poll)
	}
	return pollLogin(ctx, os.Stdout, identity, loginInterval, poll)
}

// pollLogin prints one line per poll until the identity is logged in.
func pollLogin(ctx context.Context, w io.Writer, identity string, interval time.Duration, poll pollFunc) error {
	for {
		status, err := poll(ctx)
		if err != nil {
			return fmt.Errorf("login %s: %w", identity, err)
		}
		fmt.Fprintln(w, renderStatus(identity, status))
		if status.LoggedIn() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func renderStatus(identity string, status session.LoginStatus) string {
	name := titleStyle.Render(identity)
	switch status.Status {
	case session.StatusLoggedIn:
		return name + " " + successStyle.Render("logged in")
	case session.StatusQRRequired:
		return name + " " + warningStyle.Render("waiting for QR scan") + " " + mutedStyle.Render(status.QRCode)
	default:
		return name + " " + errorStyle.Render("error") + " " + status.Error
	}
}

// =============================================================================
// LIVE VIEW
// =============================================================================

type statusMsg struct {
	status session.LoginStatus
	err    error
}

type pollTickMsg struct{}

type loginModel struct {
	ctx      context.Context
	identity string
	interval time.Duration
	poll     pollFunc

	spinner  spinner.Model
	status   session.LoginStatus
	polls    int
	started  time.Time
	err      error
	done     bool
	quitting bool
}

func newLoginModel(ctx context.Context, identity string, interval time.Duration, poll pollFunc) loginModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = warningStyle
	return loginModel{
		ctx:      ctx,
		identity: identity,
		interval: interval,
		poll:     poll,
		spinner:  sp,
		started:  time.Now(),
	}
}

func (m loginModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.pollCmd())
}

func (m loginModel) pollCmd() tea.Cmd {
	return func() tea.Msg {
		status, err := m.poll(m.ctx)
		return statusMsg{status: status, err: err}
	}
}

func (m loginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case statusMsg:
		m.polls++
		m.status = msg.status
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		if msg.status.LoggedIn() {
			m.done = true
			return m, tea.Quit
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return pollTickMsg{} })

	case pollTickMsg:
		return m, m.pollCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m loginModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("cronos login") + " " + mutedStyle.Render(m.identity) + "\n\n")

	switch {
	case m.done:
		b.WriteString(renderStatus(m.identity, m.status) + "\n")
	case m.err != nil:
		b.WriteString(errorStyle.Render("failed: ") + m.err.Error() + "\n")
	case m.polls == 0:
		b.WriteString(m.spinner.View() + " opening browser...\n")
	default:
		b.WriteString(m.spinner.View() + " " + renderStatus(m.identity, m.status) + "\n")
		b.WriteString(mutedStyle.Render(fmt.Sprintf("poll %d, %s elapsed", m.polls, time.Since(m.started).Round(time.Second))) + "\n")
	}

	if !m.done && m.err == nil {
		b.WriteString("\n" + mutedStyle.Render("q to quit") + "\n")
	}
	return b.String()
}

func watchLogin(ctx context.Context, identity string, interval time.Duration, poll pollFunc) error {
	p := tea.NewProgram(newLoginModel(ctx, identity, interval, poll), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	m := final.(loginModel)
	switch {
	case m.err != nil:
		return fmt.Errorf("login %s: %w", identity, m.err)
	case !m.done:
		return errors.New("login aborted")
	}
	return nil
}
