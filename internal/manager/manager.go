// Package manager is the session registry: it maps identities to live
// sessions, creates them on first use, advances their login state on every
// request and evicts sessions that sit awaiting a QR scan for too long.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cronos/internal/browser"
	"cronos/internal/config"
	"cronos/internal/proxy"
	"cronos/internal/session"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrManagerClosed is returned after Shutdown.
var ErrManagerClosed = errors.New("session manager closed")

// SessionFactory constructs an unopened session.
type SessionFactory func(p session.Params) (*session.Session, error)

// LoginRecorder receives every observed login status.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, identity string, status session.LoginStatus) error
}

// Options tune a Manager. Zero values take defaults from the config.
type Options struct {
	EvictAfter       time.Duration
	Clock            Clock
	Rotator          *proxy.Rotator
	Strategy         proxy.Strategy
	AssignProxy      bool // new sessions get a pool entry
	Recorder         LoginRecorder
	CloseParallelism int
	NewSession       SessionFactory
}

type entry struct {
	sess    *session.Session
	pending bool
	armed   uint64 // bumped on every observation; a timer only acts on its own
	created time.Time
}

// Info describes a registered session.
type Info struct {
	Identity  string              `json:"identity"`
	State     session.State       `json:"state"`
	Status    session.LoginStatus `json:"status"`
	Proxy     string              `json:"proxy,omitempty"`
	UseVPN    bool                `json:"use_vpn"`
	Pending   bool                `json:"pending_eviction"`
	EvictAt   *time.Time          `json:"evict_at,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// Manager owns the identity to session registry.
//
// The registry lock only covers check-then-write sequences; browser waits run
// outside it. Concurrent requests for the same identity share one in-flight
// call.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	sched      *Scheduler
	clock      Clock
	flight     singleflight.Group
	newSession SessionFactory
	evictAfter time.Duration

	rotator     *proxy.Rotator
	strategy    proxy.Strategy
	assignProxy bool
	recorder    LoginRecorder
	parallelism int

	logger *zap.Logger
}

// New creates a manager whose sessions launch browsers through launcher.
func New(cfg *config.Config, launcher browser.Launcher, logger *zap.Logger, opts Options) *Manager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	if opts.EvictAfter <= 0 {
		opts.EvictAfter = cfg.GetCloseTimeout()
	}
	if opts.Strategy == "" {
		opts.Strategy = proxy.Strategy(cfg.Proxy.Strategy)
	}
	if opts.CloseParallelism <= 0 {
		opts.CloseParallelism = 4
	}
	if opts.NewSession == nil {
		sessionLogger := logger.Named("session")
		opts.NewSession = func(p session.Params) (*session.Session, error) {
			return session.New(p, cfg, launcher, sessionLogger)
		}
	}

	return &Manager{
		entries:     make(map[string]*entry),
		sched:       NewScheduler(opts.Clock),
		clock:       opts.Clock,
		newSession:  opts.NewSession,
		evictAfter:  opts.EvictAfter,
		rotator:     opts.Rotator,
		strategy:    opts.Strategy,
		assignProxy: opts.AssignProxy,
		recorder:    opts.Recorder,
		parallelism: opts.CloseParallelism,
		logger:      logger,
	}
}

type result struct {
	sess   *session.Session
	status session.LoginStatus
}

// GetSession returns the session of identity, creating and opening it on
// first use, and the login status observed by this call.
//
// A new identity runs EnsureLoggedIn and its errors propagate. A registered
// identity is re-polled with UpdateLoginStatus, which never fails. Every
// observation other than logged_in (re)starts the eviction countdown; logged_in
// cancels it.
func (m *Manager) GetSession(ctx context.Context, identity string, useVPN bool) (*session.Session, session.LoginStatus, error) {
	if err := session.ValidateIdentity(identity); err != nil {
		return nil, session.Failed(err), err
	}

	v, err, shared := m.flight.Do(identity, func() (any, error) {
		return m.getSession(ctx, identity, useVPN)
	})
	if shared {
		m.logger.Debug("joined in-flight session request", zap.String("identity", identity))
	}
	r, _ := v.(result)
	if err != nil {
		if r.status.Status == "" {
			r.status = session.Failed(err)
		}
		return nil, r.status, err
	}
	return r.sess, r.status, nil
}

func (m *Manager) getSession(ctx context.Context, identity string, useVPN bool) (result, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return result{}, ErrManagerClosed
	}
	e, ok := m.entries[identity]
	m.mu.Unlock()

	if ok {
		status := e.sess.UpdateLoginStatus(ctx)
		m.record(ctx, identity, status)
		m.observe(identity, e, status)
		return result{sess: e.sess, status: status}, nil
	}

	params := session.Params{Identity: identity, UseVPN: useVPN}
	if m.assignProxy && m.rotator != nil {
		p, err := m.rotator.Pick(m.strategy)
		if err != nil {
			m.logger.Warn("no proxy assigned", zap.String("identity", identity), zap.Error(err))
		} else {
			params.Proxy = p
		}
	}

	sess, err := m.newSession(params)
	if err != nil {
		return result{}, fmt.Errorf("create session: %w", err)
	}

	status, err := sess.EnsureLoggedIn(ctx)
	m.record(ctx, identity, status)
	if err != nil {
		return result{status: status}, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = sess.Close()
		return result{}, ErrManagerClosed
	}
	e = &entry{sess: sess, created: m.clock.Now()}
	m.entries[identity] = e
	m.applyLocked(identity, e, status)
	m.mu.Unlock()

	m.logger.Info("session registered",
		zap.String("identity", identity),
		zap.String("status", string(status.Status)))
	return result{sess: sess, status: status}, nil
}

// observe applies a poll result unless the entry was removed while polling.
func (m *Manager) observe(identity string, e *entry, status session.LoginStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[identity]; !ok || cur != e {
		m.logger.Debug("dropping status of removed session", zap.String("identity", identity))
		return
	}
	m.applyLocked(identity, e, status)
}

func (m *Manager) applyLocked(identity string, e *entry, status session.LoginStatus) {
	e.armed++
	if status.LoggedIn() {
		e.pending = false
		if m.sched.Cancel(identity) {
			m.logger.Debug("eviction cancelled", zap.String("identity", identity))
		}
		return
	}
	e.pending = true
	armed := e.armed
	m.sched.Schedule(identity, m.evictAfter, func() { m.evict(identity, e, armed) })
	m.logger.Debug("eviction scheduled",
		zap.String("identity", identity),
		zap.Duration("after", m.evictAfter))
}

// evict closes a session still pending when its timer fires. It is a no-op
// when the identity was closed, replaced, authenticated or polled again
// after the timer was armed.
func (m *Manager) evict(identity string, e *entry, armed uint64) {
	m.mu.Lock()
	cur, ok := m.entries[identity]
	if !ok || cur != e || !e.pending || e.armed != armed {
		m.mu.Unlock()
		return
	}
	delete(m.entries, identity)
	m.mu.Unlock()

	m.logger.Info("evicting session stuck awaiting login",
		zap.String("identity", identity),
		zap.Duration("timeout", m.evictAfter))
	if err := e.sess.Close(); err != nil {
		m.logger.Error("error closing evicted session", zap.String("identity", identity), zap.Error(err))
	}
}

func (m *Manager) record(ctx context.Context, identity string, status session.LoginStatus) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordLogin(context.WithoutCancel(ctx), identity, status); err != nil {
		m.logger.Warn("failed to record login status", zap.String("identity", identity), zap.Error(err))
	}
}

// take removes identity from the registry and cancels its timer.
func (m *Manager) take(identity string) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[identity]
	if ok {
		delete(m.entries, identity)
	}
	m.sched.Cancel(identity)
	return e, ok
}

// CloseSession removes and closes the session of identity. Unknown
// identities are ignored.
func (m *Manager) CloseSession(identity string) error {
	e, ok := m.take(identity)
	if !ok {
		return nil
	}
	if err := e.sess.Close(); err != nil {
		m.logger.Error("error closing session", zap.String("identity", identity), zap.Error(err))
		return err
	}
	return nil
}

// CloseAllSessions closes every registered session. Failures are logged and
// do not stop the remaining closes.
func (m *Manager) CloseAllSessions() {
	m.mu.Lock()
	entries := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		entries[id] = e
		m.sched.Cancel(id)
	}
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(m.parallelism)
	for id, e := range entries {
		id, e := id, e
		g.Go(func() error {
			if err := e.sess.Close(); err != nil {
				m.logger.Error("error closing session", zap.String("identity", id), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	m.logger.Info("all sessions closed", zap.Int("count", len(entries)))
}

// Shutdown closes every session and stops the eviction scheduler. Later
// GetSession calls fail with ErrManagerClosed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.CloseAllSessions()
	m.sched.Stop()
}

// Lookup returns the registered session of identity without polling it.
func (m *Manager) Lookup(identity string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[identity]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// Pending reports whether identity has a scheduled eviction.
func (m *Manager) Pending(identity string) bool {
	return m.sched.Pending(identity)
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sessions lists registered sessions ordered by identity.
func (m *Manager) Sessions() []Info {
	m.mu.Lock()
	snapshot := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		snapshot[id] = e
	}
	m.mu.Unlock()

	infos := make([]Info, 0, len(snapshot))
	for id, e := range snapshot {
		info := Info{
			Identity:  id,
			State:     e.sess.State(),
			Status:    e.sess.LastStatus(),
			Proxy:     e.sess.Proxy(),
			UseVPN:    e.sess.UseVPN(),
			CreatedAt: e.created,
		}
		if at, ok := m.sched.Deadline(id); ok {
			info.Pending = true
			info.EvictAt = &at
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Identity < infos[j].Identity })
	return infos
}

// detached returns the registered session of identity, removing it from the
// registry, or an unopened session for it when none is registered.
func (m *Manager) detached(identity string) (*session.Session, error) {
	if err := session.ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if e, ok := m.take(identity); ok {
		return e.sess, nil
	}
	return m.newSession(session.Params{Identity: identity})
}

// LogoutSession logs identity out and removes it from the registry. An
// unregistered identity only has its persisted credentials deleted.
func (m *Manager) LogoutSession(identity string) error {
	sess, err := m.detached(identity)
	if err != nil {
		return err
	}
	return sess.Logout()
}

// DestroySession removes identity and deletes its persisted directory.
func (m *Manager) DestroySession(identity string) error {
	sess, err := m.detached(identity)
	if err != nil {
		return err
	}
	return sess.DestroySession()
}

// ChangeProxy applies proxy to identity. A registered session restarts its
// browser; otherwise only the persisted metadata changes.
func (m *Manager) ChangeProxy(ctx context.Context, identity, proxyURL string) error {
	if sess, ok := m.Lookup(identity); ok {
		return sess.ChangeProxy(ctx, proxyURL)
	}
	if err := session.ValidateIdentity(identity); err != nil {
		return err
	}
	sess, err := m.newSession(session.Params{Identity: identity})
	if err != nil {
		return err
	}
	defer sess.Close()
	return sess.ChangeProxy(ctx, proxyURL)
}

// RotateProxy moves identity to the next proxy of the pool.
func (m *Manager) RotateProxy(ctx context.Context, identity string) (string, error) {
	if m.rotator == nil {
		return "", proxy.ErrEmptyPool
	}
	next, err := m.rotator.Next()
	if err != nil {
		return "", err
	}
	if err := m.ChangeProxy(ctx, identity, next); err != nil {
		return "", err
	}
	m.logger.Info("proxy rotated", zap.String("identity", identity), zap.String("proxy", next))
	return next, nil
}
