package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paper-piper/Dini/internal/balance"
	"github.com/paper-piper/Dini/internal/clock"
	"github.com/paper-piper/Dini/internal/config"
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/internal/heartbeat"
	"github.com/paper-piper/Dini/internal/mining"
	"github.com/paper-piper/Dini/internal/remote"
	"github.com/paper-piper/Dini/internal/session"
	"github.com/paper-piper/Dini/internal/storage"
	"github.com/paper-piper/Dini/internal/txsync"
	"github.com/paper-piper/Dini/pkg/logger"
	"github.com/shopspring/decimal"
)

var ErrLoginRequired = errors.New("login required")

// App wires the wallet core for one user of one server.
type App struct {
	Config *config.Config

	slot      storage.Slot
	client    *remote.Client
	sessions  *session.Store
	heartbeat *heartbeat.Monitor
	sync      *txsync.Synchronizer
	miner     *mining.Simulator
	opening   decimal.Decimal

	mu      sync.Mutex
	changed chan struct{}
}

func New(cfg *config.Config) (*App, error) {
	slot, err := storage.Open(cfg.SessionBackend, cfg.SessionPath)
	if err != nil {
		return nil, fmt.Errorf("error opening session storage: %w", err)
	}

	client, err := remote.New(cfg.ServerAddress, remote.Options{
		Timeout:            cfg.RequestTimeout,
		InsecureSkipVerify: cfg.InsecureTLS,
	})
	if err != nil {
		_ = slot.Close()
		return nil, err
	}

	return newApp(cfg, slot, client, clock.New()), nil
}

func newApp(cfg *config.Config, slot storage.Slot, client *remote.Client, clk clock.Clock) *App {
	a := &App{
		Config:   cfg,
		slot:     slot,
		client:   client,
		sessions: session.NewStore(session.NewSlotPersister(slot)),
		opening:  decimal.NewFromFloat(cfg.OpeningBalance),
		changed:  make(chan struct{}),
	}

	a.heartbeat = heartbeat.New(client, a.sessions, clk, cfg.HeartbeatInterval, cfg.RequestTimeout)
	a.sync = txsync.New(client, a.sessions, clk, cfg.RequestTimeout)
	a.miner = mining.NewSimulator(
		a.sync,
		clk,
		mining.NewRandomSchedule(cfg.MiningMin, cfg.MiningMax, cfg.MiningSeed),
		cfg.MiningTick,
		decimal.NewFromFloat(cfg.MiningReward),
	)

	a.sync.Subscribe(func([]domain.Transaction) { a.broadcast() })
	a.sessions.Subscribe(func(domain.SessionState, domain.Session) { a.broadcast() })

	return a
}

func (a *App) Login(ctx context.Context, username, password string) error {
	id, err := a.client.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return a.sessions.Login(domain.Session{Username: username, ID: id})
}

func (a *App) Register(ctx context.Context, username, password string) error {
	id, err := a.client.Register(ctx, username, password)
	if err != nil {
		return err
	}
	return a.sessions.Login(domain.Session{Username: username, ID: id})
}

// Logout tells the server on a best-effort basis and always clears the local
// session, including one persisted by an earlier run.
func (a *App) Logout(ctx context.Context) error {
	if _, err := a.restore(); err != nil {
		logger.Log.Warn("error restoring session", logger.Error(err))
	}
	if sess, ok := a.sessions.Current(); ok {
		if err := a.client.Logout(ctx, sess.ID); err != nil {
			logger.Log.Warn("error logging out remotely", logger.Error(err))
		}
	}
	return a.sessions.Logout()
}

// Start restores the persisted session if none is active, then starts the
// heartbeat and polling and loads the transaction history once.
func (a *App) Start(ctx context.Context) error {
	ok, err := a.restore()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLoginRequired
	}

	a.heartbeat.Start(ctx)
	a.sync.StartPolling(a.Config.PollInterval)

	err = a.sync.PollOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNetwork):
		logger.Log.Warn("initial transaction load failed", logger.Error(err))
	default:
		return fmt.Errorf("error loading transactions: %w", err)
	}
	return nil
}

// restore loads the persisted session unless one is already active.
func (a *App) restore() (bool, error) {
	if a.sessions.State() == domain.Authenticated {
		return true, nil
	}
	return a.sessions.Restore()
}

func (a *App) Stop() {
	a.heartbeat.Stop()
	a.sync.Stop()
}

func (a *App) Close() error {
	a.Stop()
	return a.slot.Close()
}

func (a *App) Session() (domain.Session, domain.SessionState) {
	sess, _ := a.sessions.Current()
	return sess, a.sessions.State()
}

func (a *App) Balance() decimal.Decimal {
	return balance.Calculate(a.sync.Snapshot(), a.opening)
}

// History returns the reconciled transactions, newest first.
func (a *App) History() []domain.Transaction {
	return domain.SortNewestFirst(a.sync.Snapshot())
}

func (a *App) ConnectedUsers(ctx context.Context) ([]string, error) {
	if _, err := a.restore(); err != nil {
		return nil, err
	}
	sess, ok := a.sessions.Current()
	if !ok {
		return nil, fmt.Errorf("connected users: %w: %w", domain.ErrUnauthorized, domain.ErrNoSession)
	}

	users, err := a.client.ConnectedUsers(ctx, sess.ID)
	if errors.Is(err, domain.ErrUnauthorized) {
		a.sessions.Expire(sess.ID)
	}
	return users, err
}

func (a *App) Submit(ctx context.Context, typ domain.TxType, amount decimal.Decimal, details string) (domain.Transaction, error) {
	return a.sync.Submit(ctx, typ, amount, details)
}

func (a *App) Transfer(ctx context.Context, recipient string, amount decimal.Decimal) (domain.Transaction, error) {
	if recipient == "" {
		return domain.Transaction{}, fmt.Errorf("%w: transfer needs a recipient", domain.ErrInvalidDraft)
	}
	return a.sync.Submit(ctx, domain.TxTransfer, amount, "To: "+recipient)
}

func (a *App) Mine(ctx context.Context) (*mining.Run, error) {
	return a.miner.Start(ctx)
}

// Changes returns a channel that is closed on the next change to the
// transaction list or the session.
func (a *App) Changes() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.changed
}

// WaitSettled blocks until the transaction with the given id is approved or
// failed. It gives up with domain.ErrUnauthorized if the session ends first.
func (a *App) WaitSettled(ctx context.Context, id string) (domain.Transaction, error) {
	for {
		changed := a.Changes()

		if a.sessions.State() != domain.Authenticated {
			return domain.Transaction{}, fmt.Errorf("waiting for %s: %w", id, domain.ErrUnauthorized)
		}

		found := false
		for _, tx := range a.sync.Snapshot() {
			if tx.ID != id {
				continue
			}
			found = true
			if tx.Status.Terminal() {
				return tx, nil
			}
		}
		if !found {
			return domain.Transaction{}, fmt.Errorf("waiting for %s: %w", id, domain.ErrTransactionNotFound)
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return domain.Transaction{}, ctx.Err()
		}
	}
}

func (a *App) broadcast() {
	a.mu.Lock()
	defer a.mu.Unlock()
	close(a.changed)
	a.changed = make(chan struct{})
}
