package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cronos/internal/browser"
	"cronos/internal/config"
	"cronos/internal/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Message holds the optional payloads of a composite send. Empty fields are
// skipped.
type Message struct {
	Image    string `json:"image_path,omitempty"`
	Text     string `json:"text,omitempty"`
	Audio    string `json:"audio_path,omitempty"`
	Document string `json:"document_path,omitempty"`
}

// Kinds lists the payloads present, in send order.
func (m Message) Kinds() []string {
	var kinds []string
	for _, p := range m.payloads() {
		kinds = append(kinds, string(p.step))
	}
	return kinds
}

type payload struct {
	step  Step
	kind  Kind
	value string
}

// payloads returns the non-empty payloads as image, text, audio, document.
func (m Message) payloads() []payload {
	all := []payload{
		{StepImage, KindImage, m.Image},
		{StepText, "", m.Text},
		{StepAudio, KindAudio, m.Audio},
		{StepDocument, KindDocument, m.Document},
	}
	out := all[:0]
	for _, p := range all {
		if p.value != "" {
			out = append(out, p)
		}
	}
	return out
}

// Request is one composite send.
type Request struct {
	Session    string
	To         string // contact name, or a phone number when NonContact is set
	NonContact bool
	UseVPN     bool
	Message
}

// Result describes a finished composite send.
type Result struct {
	ID         string
	Session    string
	To         string
	NonContact bool
	Kinds      []string
	Success    bool
	Step       Step
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// SessionSource hands out sessions with their current login status.
type SessionSource interface {
	GetSession(ctx context.Context, identity string, useVPN bool) (*session.Session, session.LoginStatus, error)
}

// SendRecorder stores send results.
type SendRecorder interface {
	RecordSend(ctx context.Context, r Result) error
}

// ChatFactory builds the chat driver for an open page.
type ChatFactory func(page browser.Page) Chat

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithChatFactory replaces the web-client chat driver.
func WithChatFactory(f ChatFactory) Option {
	return func(o *Orchestrator) { o.newChat = f }
}

// WithRecorder stores every send result.
func WithRecorder(r SendRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithSettle overrides the pause before opening a chat and after each payload.
func WithSettle(d time.Duration) Option {
	return func(o *Orchestrator) { o.settle = d }
}

// Orchestrator performs composite sends over sessions obtained from a
// SessionSource. Sends on the same identity run one at a time; sends on
// different identities run concurrently.
type Orchestrator struct {
	sessions SessionSource
	newChat  ChatFactory
	recorder SendRecorder
	settle   time.Duration
	logger   *zap.Logger

	lanesMu sync.Mutex
	lanes   map[string]*semaphore.Weighted
}

// NewOrchestrator creates an orchestrator. Chats default to WebClient with
// the locators and timings of cfg.
func NewOrchestrator(sessions SessionSource, cfg *config.Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		sessions: sessions,
		settle:   cfg.GetSettle(),
		logger:   logger,
		lanes:    make(map[string]*semaphore.Weighted),
	}
	chatLogger := logger.Named("chat")
	locators := cfg.Locators
	timings := TimingsFromConfig(cfg)
	o.newChat = func(page browser.Page) Chat {
		return NewWebClient(page, locators, timings, chatLogger)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SendCompleteMessage sends msg to a saved contact and reports success.
func (o *Orchestrator) SendCompleteMessage(ctx context.Context, identity, contact string, msg Message, useVPN bool) bool {
	return o.Send(ctx, Request{Session: identity, To: contact, UseVPN: useVPN, Message: msg}).Success
}

// SendCompleteMessageToNonContact sends msg to a raw phone number and
// reports success.
func (o *Orchestrator) SendCompleteMessageToNonContact(ctx context.Context, identity, number string, msg Message, useVPN bool) bool {
	return o.Send(ctx, Request{Session: identity, To: number, NonContact: true, UseVPN: useVPN, Message: msg}).Success
}

// Send runs one composite send. Failures are logged and reported in the
// result; Send never returns an error.
func (o *Orchestrator) Send(ctx context.Context, req Request) Result {
	res := Result{
		ID:         uuid.NewString(),
		Session:    req.Session,
		To:         req.To,
		NonContact: req.NonContact,
		Kinds:      req.Message.Kinds(),
		StartedAt:  time.Now(),
	}
	log := o.logger.With(
		zap.String("send_id", res.ID),
		zap.String("identity", req.Session),
		zap.String("target", req.To),
		zap.Bool("non_contact", req.NonContact))

	err := o.run(ctx, req, log)
	res.FinishedAt = time.Now()
	if err != nil {
		var se *StepError
		if errors.As(err, &se) {
			res.Step = se.Step
		}
		res.Error = err.Error()
		log.Error("send failed",
			zap.String("step", string(res.Step)),
			zap.Error(err))
	} else {
		res.Success = true
		log.Info("message sent",
			zap.Strings("kinds", res.Kinds),
			zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)))
	}

	if o.recorder != nil {
		if rerr := o.recorder.RecordSend(context.WithoutCancel(ctx), res); rerr != nil {
			log.Warn("failed to record send", zap.Error(rerr))
		}
	}
	return res
}

// lane returns the send lock of identity.
func (o *Orchestrator) lane(identity string) *semaphore.Weighted {
	o.lanesMu.Lock()
	defer o.lanesMu.Unlock()
	l, ok := o.lanes[identity]
	if !ok {
		l = semaphore.NewWeighted(1)
		o.lanes[identity] = l
	}
	return l
}

func (o *Orchestrator) run(ctx context.Context, req Request, log *zap.Logger) (err error) {
	step := StepSession
	defer func() {
		if r := recover(); r != nil {
			log.Error("send panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = &StepError{Step: step, Err: fmt.Errorf("%w: %v", ErrSendPanic, r)}
		}
	}()

	// The page is shared by every send of the identity.
	lane := o.lane(req.Session)
	if err := lane.Acquire(ctx, 1); err != nil {
		return &StepError{Step: StepSession, Err: err}
	}
	defer lane.Release(1)

	return o.runLocked(ctx, req, log, &step)
}

// runLocked performs the send, keeping step at the phase in progress.
func (o *Orchestrator) runLocked(ctx context.Context, req Request, log *zap.Logger, step *Step) error {
	sess, status, err := o.sessions.GetSession(ctx, req.Session, req.UseVPN)
	if err != nil {
		return &StepError{Step: StepSession, Err: err}
	}
	if !status.LoggedIn() {
		return &StepError{Step: StepSession, Err: fmt.Errorf("%w: %s", ErrNotAuthenticated, status)}
	}
	page := sess.Page()
	if page == nil {
		return &StepError{Step: StepSession, Err: session.ErrSessionNotOpen}
	}
	chat := o.newChat(page)

	*step = StepOpenChat
	if err := sleep(ctx, o.settle); err != nil {
		return &StepError{Step: StepOpenChat, Err: err}
	}
	if req.NonContact {
		err = chat.OpenByAddress(ctx, req.To)
	} else {
		err = chat.OpenByName(ctx, req.To)
	}
	if err != nil {
		return &StepError{Step: StepOpenChat, Err: err}
	}

	for _, p := range req.Message.payloads() {
		*step = p.step
		if p.kind == "" {
			err = chat.SendText(ctx, p.value)
		} else {
			err = chat.SendAttachment(ctx, p.kind, p.value)
		}
		if err == nil {
			err = sleep(ctx, o.settle)
		}
		if err != nil {
			o.leave(ctx, chat, log)
			return &StepError{Step: p.step, Err: err}
		}
		log.Debug("payload sent", zap.String("kind", string(p.step)))
	}

	*step = StepExitChat
	if err := chat.Exit(ctx); err != nil {
		return &StepError{Step: StepExitChat, Err: err}
	}
	return nil
}

// leave exits a chat after a failed payload so the next send starts from the
// chat list.
func (o *Orchestrator) leave(ctx context.Context, chat Chat, log *zap.Logger) {
	if err := chat.Exit(context.WithoutCancel(ctx)); err != nil {
		log.Debug("could not leave chat after failure", zap.Error(err))
	}
}
