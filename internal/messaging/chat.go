// Package messaging drives one complete message exchange on an authenticated
// session: open a chat, send the payloads in a fixed order, leave the chat.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrContactNotFound means no search result matched the contact name.
	ErrContactNotFound = errors.New("contact not found")
	// ErrNotAuthenticated means the session was not logged in.
	ErrNotAuthenticated = errors.New("session not authenticated")
	// ErrSendPanic wraps a panic raised while sending.
	ErrSendPanic = errors.New("send panicked")
)

// Kind names an attachment payload.
type Kind string

const (
	KindImage    Kind = "image"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
)

// Chat is the UI capability used by the orchestrator.
type Chat interface {
	// OpenByName opens the chat of a saved contact.
	OpenByName(ctx context.Context, name string) error
	// OpenByAddress opens a chat with a raw phone number through the new
	// chat flow. It cannot tell whether the number exists.
	OpenByAddress(ctx context.Context, address string) error
	SendText(ctx context.Context, text string) error
	SendAttachment(ctx context.Context, kind Kind, path string) error
	// Exit leaves the open chat.
	Exit(ctx context.Context) error
}

// Step names a stage of a composite send.
type Step string

const (
	StepSession  Step = "session"
	StepOpenChat Step = "open_chat"
	StepImage    Step = "image"
	StepText     Step = "text"
	StepAudio    Step = "audio"
	StepDocument Step = "document"
	StepExitChat Step = "exit_chat"
)

// StepError records which step of a composite send failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// sleep pauses for d or until ctx ends.
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
