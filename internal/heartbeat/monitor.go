// Package heartbeat keeps an authenticated session alive and demotes it to
// expired as soon as the server stops accepting it.
package heartbeat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/paper-piper/Dini/internal/clock"
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/internal/session"
	"github.com/paper-piper/Dini/pkg/logger"
)

type heartbeatClient interface {
	Heartbeat(ctx context.Context, sessionID string) error
}

type sessionStore interface {
	Current() (domain.Session, bool)
	Expire(sessionID string) bool
	Subscribe(l session.Listener)
}

type Monitor struct {
	client   heartbeatClient
	sessions sessionStore
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	task    clock.Timer
	epoch   uint64
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(client heartbeatClient, sessions sessionStore, clk clock.Clock, interval, timeout time.Duration) *Monitor {
	m := &Monitor{
		client:   client,
		sessions: sessions,
		clock:    clk,
		interval: interval,
		timeout:  timeout,
	}
	sessions.Subscribe(m.sessionChanged)
	return m
}

// Start begins beating whenever a session is Authenticated. It follows
// session transitions until Stop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.rescheduleLocked()
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	m.epoch++
	m.cancel()
	if m.task != nil {
		m.task.Stop()
		m.task = nil
	}
}

// Beat sends one heartbeat for the current session right away.
func (m *Monitor) Beat(ctx context.Context) error {
	m.mu.Lock()
	sess, ok := m.sessions.Current()
	epoch := m.epoch
	m.mu.Unlock()

	if !ok {
		return domain.ErrNoSession
	}
	return m.beat(ctx, sess, epoch)
}

func (m *Monitor) sessionChanged(domain.SessionState, domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	if m.running {
		m.rescheduleLocked()
	}
}

func (m *Monitor) rescheduleLocked() {
	if m.task != nil {
		m.task.Stop()
		m.task = nil
	}
	if _, ok := m.sessions.Current(); !ok {
		return
	}
	m.task = m.clock.Every(m.interval, m.tick)
}

func (m *Monitor) tick() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	sess, ok := m.sessions.Current()
	ctx, epoch := m.ctx, m.epoch
	m.mu.Unlock()

	if !ok {
		return
	}
	if err := m.beat(ctx, sess, epoch); err != nil {
		logger.Log.Warn("heartbeat failed", logger.String("username", sess.Username), logger.Error(err))
	}
}

func (m *Monitor) beat(ctx context.Context, sess domain.Session, epoch uint64) error {
	reqCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.client.Heartbeat(reqCtx, sess.ID)
	if err == nil {
		return nil
	}

	m.mu.Lock()
	stale := epoch != m.epoch
	m.mu.Unlock()
	if stale {
		logger.Log.Debug("dropping heartbeat result for replaced session", logger.Error(err))
		return nil
	}

	if errors.Is(err, domain.ErrUnauthorized) {
		m.sessions.Expire(sess.ID)
	}
	return err
}
