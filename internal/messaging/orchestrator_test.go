package messaging

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cronos/internal/browser"
	"cronos/internal/browser/browsertest"
	"cronos/internal/config"
	"cronos/internal/session"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingChat logs every call and fails the ones listed in fail.
type recordingChat struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (c *recordingChat) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return c.fail[call]
}

func (c *recordingChat) OpenByName(_ context.Context, name string) error {
	return c.record("open " + name)
}

func (c *recordingChat) OpenByAddress(_ context.Context, address string) error {
	return c.record("new-chat " + address)
}

func (c *recordingChat) SendText(_ context.Context, text string) error {
	return c.record("text " + text)
}

func (c *recordingChat) SendAttachment(_ context.Context, kind Kind, path string) error {
	return c.record(fmt.Sprintf("%s %s", kind, path))
}

func (c *recordingChat) Exit(context.Context) error {
	return c.record("exit")
}

type stubSource struct {
	mu     sync.Mutex
	sess   *session.Session
	status session.LoginStatus
	err    error
	calls  int
}

func (s *stubSource) GetSession(context.Context, string, bool) (*session.Session, session.LoginStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.sess, s.status, s.err
}

type resultLog struct {
	results []Result
}

func (r *resultLog) RecordSend(_ context.Context, res Result) error {
	r.results = append(r.results, res)
	return nil
}

// openSession returns a logged-in session on a fake page.
func openSession(t *testing.T, setup func(cfg *config.Config, p *browsertest.Page)) (*session.Session, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Sessions.Dir = filepath.Join(dir, "sessions")
	cfg.Sessions.QRDir = filepath.Join(dir, "qr")
	cfg.Sessions.LoginWait = "100ms"
	cfg.Sessions.PollInterval = "1ms"
	cfg.Messaging = config.MessagingConfig{
		Wait: "20ms", Settle: "0s", OpenSettle: "0s", KeystrokePause: "0s", TextSettle: "0s", ConfirmPause: "0s",
	}

	launcher := browsertest.NewLauncher(func(p *browsertest.Page) {
		p.Show(browser.Locator(cfg.Locators.LoggedIn))
		if setup != nil {
			setup(cfg, p)
		}
	})
	sess, err := session.New(session.Params{Identity: "5511999990000"}, cfg, launcher, nil)
	require.NoError(t, err)
	status, err := sess.EnsureLoggedIn(context.Background())
	require.NoError(t, err)
	require.True(t, status.LoggedIn())
	t.Cleanup(func() { _ = sess.Close() })
	return sess, cfg
}

func newTestOrchestrator(t *testing.T, src SessionSource, chat *recordingChat, rec SendRecorder) *Orchestrator {
	t.Helper()
	opts := []Option{
		WithSettle(0),
		WithChatFactory(func(browser.Page) Chat { return chat }),
	}
	if rec != nil {
		opts = append(opts, WithRecorder(rec))
	}
	return NewOrchestrator(src, nil, nil, opts...)
}

func assertCalls(t *testing.T, want []string, chat *recordingChat) {
	t.Helper()
	if diff := cmp.Diff(want, chat.calls); diff != "" {
		t.Errorf("chat calls mismatch (-want +got):\n%s", diff)
	}
}

func TestSendCompleteMessage_TextOnly(t *testing.T) {
	sess, _ := openSession(t, nil)
	chat := &recordingChat{}
	o := newTestOrchestrator(t, &stubSource{sess: sess, status: session.Authenticated()}, chat, nil)

	ok := o.SendCompleteMessage(context.Background(), "5511999990000", "Alice", Message{Text: "hi"}, false)

	assert.True(t, ok)
	assertCalls(t, []string{"open Alice", "text hi", "exit"}, chat)
}

func TestSendCompleteMessage_PayloadOrder(t *testing.T) {
	sess, _ := openSession(t, nil)
	chat := &recordingChat{}
	o := newTestOrchestrator(t, &stubSource{sess: sess, status: session.Authenticated()}, chat, nil)

	msg := Message{Document: "c.pdf", Audio: "b.ogg", Text: "hi", Image: "a.png"}
	ok := o.SendCompleteMessage(context.Background(), "5511999990000", "Alice", msg, false)

	assert.True(t, ok)
	assertCalls(t, []string{
		"open Alice",
		"image a.png",
		"text hi",
		"audio b.ogg",
		"document c.pdf",
		"exit",
	}, chat)
}

func TestSendCompleteMessage_PendingLoginTouchesNothing(t *testing.T) {
	chat := &recordingChat{}
	created := 0
	src := &stubSource{status: session.Pending("/tmp/5511_qr_code.png")}
	o := NewOrchestrator(src, nil, nil,
		WithSettle(0),
		WithChatFactory(func(browser.Page) Chat { created++; return chat }))

	ok := o.SendCompleteMessage(context.Background(), "5511", "Alice", Message{Text: "hi"}, false)

	assert.False(t, ok)
	assert.Equal(t, 1, src.calls)
	assert.Zero(t, created)
	assert.Empty(t, chat.calls)
}

func TestSend_SessionErrorIsReported(t *testing.T) {
	chat := &recordingChat{}
	o := newTestOrchestrator(t, &stubSource{err: session.ErrLoginDetectionTimeout}, chat, nil)

	res := o.Send(context.Background(), Request{Session: "5511", To: "Alice", Message: Message{Text: "hi"}})

	assert.False(t, res.Success)
	assert.Equal(t, StepSession, res.Step)
	assert.Contains(t, res.Error, "login detection timeout")
	assert.Empty(t, chat.calls)
}

func TestSend_ContactNotFoundStopsBeforePayloads(t *testing.T) {
	sess, _ := openSession(t, nil)
	chat := &recordingChat{fail: map[string]error{"open Bob": ErrContactNotFound}}
	o := newTestOrchestrator(t, &stubSource{sess: sess, status: session.Authenticated()}, chat, nil)

	res := o.Send(context.Background(), Request{Session: "5511999990000", To: "Bob", Message: Message{Text: "hi"}})

	assert.False(t, res.Success)
	assert.Equal(t, StepOpenChat, res.Step)
	assertCalls(t, []string{"open Bob"}, chat)
}

func TestSend_PayloadFailureLeavesChat(t *testing.T) {
	sess, _ := openSession(t, nil)
	chat := &recordingChat{fail: map[string]error{"text hi": browsertest.ErrBoom}}
	o := newTestOrchestrator(t, &stubSource{sess: sess, status: session.Authenticated()}, chat, nil)

	res := o.Send(context.Background(), Request{
		Session: "5511999990000",
		To:      "Alice",
		Message: Message{Image: "a.png", Text: "hi", Document: "c.pdf"},
	})

	assert.False(t, res.Success)
	assert.Equal(t, StepText, res.Step)
	assertCalls(t, []string{"open Alice", "image a.png", "text hi", "exit"}, chat)
}

func TestSend_ExitFailureFails(t *testing.T) {
	sess, _ := openSession(t, nil)
	chat := &recordingChat{fail: map[string]error{"exit": browsertest.ErrBoom}}
	o := newTestOrchestrator(t, &stubSource{sess: sess, status: session.Authenticated()}, chat, nil)

	res := o.Send(context.Background(), Request{Session: "5511999990000", To: "Alice", Message: Message{Text: "hi"}})

	assert.False(t, res.Success)
	assert.Equal(t, StepExitChat, res.Step)
}

func TestSendCompleteMessageToNonContact(t *testing.T) {
	sess, _ := openSession(t, nil)
	chat := &recordingChat{}
	o := newTestOrchestrator(t, &stubSource{sess: sess, status: session.Authenticated()}, chat, nil)

	ok := o.SendCompleteMessageToNonContact(context.Background(), "5511999990000", "5511988887777", Message{Text: "hi"}, false)

	assert.True(t, ok)
	assertCalls(t, []string{"new-chat 5511988887777", "text hi", "exit"}, chat)
}

func TestSend_RecordsResult(t *testing.T) {
	sess, _ := openSession(t, nil)
	rec := &resultLog{}
	o := newTestOrchestrator(t, &stubSource{sess: sess, status: session.Authenticated()}, &recordingChat{}, rec)

	res := o.Send(context.Background(), Request{
		Session:    "5511999990000",
		To:         "5511988887777",
		NonContact: true,
		Message:    Message{Text: "hi", Audio: "b.ogg"},
	})

	require.Len(t, rec.results, 1)
	got := rec.results[0]
	assert.Equal(t, res.ID, got.ID)
	assert.NotEmpty(t, got.ID)
	assert.True(t, got.Success)
	assert.True(t, got.NonContact)
	assert.Equal(t, []string{"text", "audio"}, got.Kinds)
	assert.False(t, got.FinishedAt.Before(got.StartedAt))
}

func TestSend_WebClientEndToEnd(t *testing.T) {
	var page *browsertest.Page
	sess, cfg := openSession(t, func(cfg *config.Config, p *browsertest.Page) {
		p.Show(
			browser.Locator(cfg.Locators.SearchBox),
			browser.Locator(cfg.Locators.MessageBox),
			browser.Locator(`//div[@tabindex='0' and .//span[@title='Alice']]`),
		)
		page = p
	})
	o := NewOrchestrator(&stubSource{sess: sess, status: session.Authenticated()}, cfg, nil)

	ok := o.SendCompleteMessage(context.Background(), "5511999990000", "Alice", Message{Text: "hi"}, false)
	require.True(t, ok)

	search := cfg.Locators.SearchBox
	box := cfg.Locators.MessageBox
	actions := page.Actions()
	start := len(actions) - 7
	require.GreaterOrEqual(t, start, 0)
	want := []string{
		"clear " + search,
		"type " + search + " Alice",
		"click //div[@tabindex='0' and .//span[@title='Alice']]",
		"type " + box + " hi",
		"press " + box + " Enter",
		"clear " + search,
		"press " + search + " Escape",
	}
	if diff := cmp.Diff(want, actions[start:]); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageKinds(t *testing.T) {
	assert.Nil(t, Message{}.Kinds())
	assert.Equal(t, []string{"image", "document"}, Message{Document: "d", Image: "i"}.Kinds())
}

// gatedChat holds OpenByName for the gated contact until release is closed.
type gatedChat struct {
	*recordingChat
	gate    string
	entered chan struct{}
	release chan struct{}
}

func newGatedChat(gate string) *gatedChat {
	return &gatedChat{
		recordingChat: &recordingChat{},
		gate:          gate,
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (c *gatedChat) OpenByName(ctx context.Context, name string) error {
	err := c.recordingChat.OpenByName(ctx, name)
	if name == c.gate {
		close(c.entered)
		<-c.release
	}
	return err
}

func TestSend_SameSessionRunsOneAtATime(t *testing.T) {
	sess, _ := openSession(t, nil)
	chat := newGatedChat("Alice")
	o := NewOrchestrator(&stubSource{sess: sess, status: session.Authenticated()}, nil, nil,
		WithSettle(0),
		WithChatFactory(func(browser.Page) Chat { return chat }))
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = o.SendCompleteMessage(ctx, "5511999990000", "Alice", Message{Text: "hi Alice"}, false)
	}()
	<-chat.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = o.SendCompleteMessage(ctx, "5511999990000", "Bob", Message{Text: "hi Bob"}, false)
	}()

	// Bob's send must wait while Alice's chat is open.
	time.Sleep(20 * time.Millisecond)
	chat.mu.Lock()
	assert.Equal(t, []string{"open Alice"}, chat.calls)
	chat.mu.Unlock()

	close(chat.release)
	wg.Wait()

	assert.Equal(t, []bool{true, true}, results)
	assertCalls(t, []string{
		"open Alice", "text hi Alice", "exit",
		"open Bob", "text hi Bob", "exit",
	}, chat.recordingChat)
}

func TestSend_DistinctSessionsDoNotWait(t *testing.T) {
	sess, _ := openSession(t, nil)
	gated := newGatedChat("Alice")
	other := &recordingChat{}
	src := &stubSource{sess: sess, status: session.Authenticated()}
	var mu sync.Mutex
	calls := 0
	o := NewOrchestrator(src, nil, nil,
		WithSettle(0),
		WithChatFactory(func(browser.Page) Chat {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return gated
			}
			return other
		}))
	ctx := context.Background()

	done := make(chan bool)
	go func() {
		done <- o.SendCompleteMessage(ctx, "5511999990001", "Alice", Message{Text: "hi"}, false)
	}()
	<-gated.entered

	// Completes while the first identity is still inside its chat.
	assert.True(t, o.SendCompleteMessage(ctx, "5511999990002", "Bob", Message{Text: "hi"}, false))
	assertCalls(t, []string{"open Bob", "text hi", "exit"}, other)

	close(gated.release)
	assert.True(t, <-done)
}

func TestSend_CancelledWhileWaitingForSession(t *testing.T) {
	sess, _ := openSession(t, nil)
	chat := newGatedChat("Alice")
	src := &stubSource{sess: sess, status: session.Authenticated()}
	o := NewOrchestrator(src, nil, nil,
		WithSettle(0),
		WithChatFactory(func(browser.Page) Chat { return chat }))

	done := make(chan bool)
	go func() {
		done <- o.SendCompleteMessage(context.Background(), "5511999990000", "Alice", Message{Text: "hi"}, false)
	}()
	<-chat.entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := o.Send(ctx, Request{Session: "5511999990000", To: "Bob", Message: Message{Text: "hi"}})
	assert.False(t, res.Success)
	assert.Equal(t, StepSession, res.Step)
	assert.Contains(t, res.Error, context.Canceled.Error())

	close(chat.release)
	assert.True(t, <-done)
	assert.Equal(t, 1, src.calls)
}

// panickingChat panics on SendText.
type panickingChat struct {
	recordingChat
}

func (c *panickingChat) SendText(context.Context, string) error {
	panic("renderer crashed")
}

func TestSend_PanicBecomesFailedResult(t *testing.T) {
	sess, _ := openSession(t, nil)
	chat := &panickingChat{}
	rec := &resultLog{}
	o := NewOrchestrator(&stubSource{sess: sess, status: session.Authenticated()}, nil, nil,
		WithSettle(0),
		WithRecorder(rec),
		WithChatFactory(func(browser.Page) Chat { return chat }))

	var res Result
	require.NotPanics(t, func() {
		res = o.Send(context.Background(), Request{Session: "5511999990000", To: "Alice", Message: Message{Text: "hi"}})
	})
	assert.False(t, res.Success)
	assert.Equal(t, StepText, res.Step)
	assert.Contains(t, res.Error, "send panicked: renderer crashed")
	require.Len(t, rec.results, 1)
	assert.False(t, rec.results[0].Success)

	// The session is usable again afterwards.
	res = o.Send(context.Background(), Request{Session: "5511999990000", To: "Alice", Message: Message{Image: "a.png"}})
	assert.True(t, res.Success)
	assertCalls(t, []string{"open Alice", "open Alice", "image a.png", "exit"}, &chat.recordingChat)
}
