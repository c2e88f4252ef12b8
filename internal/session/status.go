package session

import (
	"errors"
	"fmt"
)

var (
	// ErrLoginDetectionTimeout means neither the authenticated panel nor the
	// QR code appeared within the login wait.
	ErrLoginDetectionTimeout = errors.New("login detection timeout")
	// ErrQRCapture means the QR code could not be located or saved.
	ErrQRCapture = errors.New("qr capture failed")
	// ErrSessionClosed is returned by every operation on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionOpen is returned when EnsureLoggedIn runs on an open session.
	ErrSessionOpen = errors.New("session already open")
	// ErrSessionNotOpen is returned when polling a session that never opened.
	ErrSessionNotOpen = errors.New("session not open")
	// ErrInvalidIdentity rejects identities unusable as a directory name.
	ErrInvalidIdentity = errors.New("invalid identity")
)

// Status is the externally visible login status.
type Status string

const (
	StatusLoggedIn   Status = "logged_in"
	StatusQRRequired Status = "qr_required"
	StatusError      Status = "error"
)

// LoginStatus is the tri-state result of a login observation.
type LoginStatus struct {
	Status Status `json:"status"`
	QRCode string `json:"qr_code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Authenticated reports a logged-in session.
func Authenticated() LoginStatus {
	return LoginStatus{Status: StatusLoggedIn}
}

// Pending reports a session waiting for a QR scan.
func Pending(qrPath string) LoginStatus {
	return LoginStatus{Status: StatusQRRequired, QRCode: qrPath}
}

// Failed reports an observation that could not complete.
func Failed(err error) LoginStatus {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return LoginStatus{Status: StatusError, Error: msg}
}

// LoggedIn reports whether the status is logged_in.
func (s LoginStatus) LoggedIn() bool {
	return s.Status == StatusLoggedIn
}

// Pending reports whether the session awaits a QR scan.
func (s LoginStatus) Pending() bool {
	return s.Status == StatusQRRequired
}

func (s LoginStatus) String() string {
	switch s.Status {
	case StatusQRRequired:
		return fmt.Sprintf("%s (%s)", s.Status, s.QRCode)
	case StatusError:
		return fmt.Sprintf("%s: %s", s.Status, s.Error)
	default:
		return string(s.Status)
	}
}

// State is the lifecycle state of a Session.
type State int

const (
	StateUninitialized State = iota
	StateOpening
	StateAuthenticated
	StateAwaitingLogin
	StateClosed
)

var stateNames = map[State]string{
	StateUninitialized: "uninitialized",
	StateOpening:       "opening",
	StateAuthenticated: "authenticated",
	StateAwaitingLogin: "awaiting_login",
	StateClosed:        "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state name in JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
