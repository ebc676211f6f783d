// Package txsync keeps the local transaction list converging toward the
// server's authoritative set.
package txsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/paper-piper/Dini/internal/clock"
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/internal/session"
	"github.com/paper-piper/Dini/pkg/logger"
	"github.com/shopspring/decimal"
)

var errSessionReplaced = errors.New("session replaced while request was in flight")

type transactionClient interface {
	Transactions(ctx context.Context, sessionID string) ([]domain.Transaction, error)
	CreateTransaction(ctx context.Context, sessionID string, draft domain.Draft) (domain.Transaction, error)
}

type sessionStore interface {
	Current() (domain.Session, bool)
	Expire(sessionID string) bool
	Subscribe(l session.Listener)
}

// Listener receives a copy of the list after every change. It must not call
// back into the Synchronizer.
type Listener func(txs []domain.Transaction)

type Synchronizer struct {
	client   transactionClient
	sessions sessionStore
	clock    clock.Clock
	timeout  time.Duration

	mu       sync.Mutex
	txs      []domain.Transaction
	owner    string
	polling  bool
	interval time.Duration
	task     clock.Timer
	ctx      context.Context
	cancel   context.CancelFunc

	// epoch changes with the session, generation with every Stop. Poll
	// results are dropped if either moved; submissions only check epoch.
	epoch      uint64
	generation uint64

	emitMu    sync.Mutex
	listeners []Listener
}

func New(client transactionClient, sessions sessionStore, clk clock.Clock, timeout time.Duration) *Synchronizer {
	s := &Synchronizer{
		client:   client,
		sessions: sessions,
		clock:    clk,
		timeout:  timeout,
	}
	sessions.Subscribe(s.sessionChanged)
	return s
}

// Submit asks the server to create a pending transaction and puts the
// created record at the front of the local list. Nothing changes locally on
// failure.
func (s *Synchronizer) Submit(ctx context.Context, typ domain.TxType, amount decimal.Decimal, details string) (domain.Transaction, error) {
	draft := domain.Draft{Type: typ, Amount: amount, Details: details}
	if err := draft.Validate(); err != nil {
		return domain.Transaction{}, err
	}

	s.mu.Lock()
	sess, ok := s.sessions.Current()
	if !ok {
		s.mu.Unlock()
		return domain.Transaction{}, fmt.Errorf("submit: %w: %w", domain.ErrUnauthorized, domain.ErrNoSession)
	}
	s.adoptLocked(sess.Username)
	epoch := s.epoch
	s.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.client.CreateTransaction(reqCtx, sess.ID, draft)
	if err != nil {
		s.rejected(sess, err)
		return domain.Transaction{}, err
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		logger.Log.Warn("not applying submission for replaced session", logger.String("id", tx.ID))
		return domain.Transaction{}, fmt.Errorf("submit: %w: %w", domain.ErrUnauthorized, errSessionReplaced)
	}

	for _, existing := range s.txs {
		if existing.ID == tx.ID {
			s.mu.Unlock()
			return existing, nil
		}
	}

	next := make([]domain.Transaction, 0, len(s.txs)+1)
	next = append(next, tx)
	next = append(next, s.txs...)
	s.commitLocked(next)

	logger.Log.Info("transaction submitted",
		logger.String("id", tx.ID),
		logger.String("type", string(tx.Type)),
		logger.Stringer("amount", tx.Amount),
	)
	return tx, nil
}

// PollOnce fetches the full set for the active session and merges it.
func (s *Synchronizer) PollOnce(ctx context.Context) error {
	s.mu.Lock()
	sess, ok := s.sessions.Current()
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("poll: %w: %w", domain.ErrUnauthorized, domain.ErrNoSession)
	}
	s.adoptLocked(sess.Username)
	epoch, generation := s.epoch, s.generation
	s.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snapshot, err := s.client.Transactions(reqCtx, sess.ID)
	if err != nil {
		s.rejected(sess, err)
		return err
	}

	s.mu.Lock()
	if epoch != s.epoch || generation != s.generation {
		s.mu.Unlock()
		logger.Log.Debug("dropping stale poll result")
		return nil
	}

	merged, changed := Merge(s.txs, snapshot)
	if !changed {
		s.rescheduleLocked()
		s.mu.Unlock()
		return nil
	}
	s.commitLocked(merged)
	return nil
}

// StartPolling enables the repeating poll. The task only runs while the
// session is Authenticated and at least one transaction is pending.
func (s *Synchronizer) StartPolling(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.polling {
		return
	}
	s.polling = true
	s.interval = interval
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.rescheduleLocked()
}

func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.polling {
		return
	}
	s.polling = false
	s.generation++
	s.cancel()
	s.rescheduleLocked()
}

// Polling reports whether the repeating poll is currently scheduled.
func (s *Synchronizer) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task != nil
}

func (s *Synchronizer) Snapshot() []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.txs)
}

func (s *Synchronizer) Subscribe(l Listener) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Synchronizer) sessionChanged(state domain.SessionState, sess domain.Session) {
	s.mu.Lock()
	s.epoch++
	if s.polling {
		s.cancel()
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	if state == domain.Authenticated && s.owner != sess.Username {
		s.owner = sess.Username
		if len(s.txs) > 0 {
			s.commitLocked(nil)
			return
		}
	}
	s.rescheduleLocked()
	s.mu.Unlock()
}

// adoptLocked drops the cached list when a different user is active.
func (s *Synchronizer) adoptLocked(username string) {
	if s.owner == username {
		return
	}
	s.owner = username
	s.txs = nil
}

func (s *Synchronizer) rejected(sess domain.Session, err error) {
	if errors.Is(err, domain.ErrUnauthorized) {
		s.sessions.Expire(sess.ID)
	}
}

func (s *Synchronizer) rescheduleLocked() {
	_, authenticated := s.sessions.Current()
	want := s.polling && authenticated && domain.HasPending(s.txs)

	switch {
	case want && s.task == nil:
		s.task = s.clock.Every(s.interval, s.tick)
		logger.Log.Debug("polling started", logger.Duration("interval", s.interval))
	case !want && s.task != nil:
		s.task.Stop()
		s.task = nil
		logger.Log.Debug("polling stopped")
	}
}

func (s *Synchronizer) tick() {
	s.mu.Lock()
	if s.task == nil {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.PollOnce(ctx); err != nil {
		logger.Log.Warn("poll failed", logger.Error(err))
	}
}

// commitLocked installs next, reschedules polling and notifies listeners.
// It is called with mu held and returns with mu released.
func (s *Synchronizer) commitLocked(next []domain.Transaction) {
	s.txs = next
	s.rescheduleLocked()
	snapshot := clone(next)

	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	for _, l := range s.listeners {
		l(snapshot)
	}
}

func clone(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	copy(out, txs)
	return out
}
