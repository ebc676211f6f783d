package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paper-piper/Dini/internal/balance"
	"github.com/paper-piper/Dini/internal/clock"
	"github.com/paper-piper/Dini/internal/config"
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/pkg/logger"
	"github.com/shopspring/decimal"
)

type SettlementRepository interface {
	PendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Record, error)
	Transactions(ctx context.Context, userID int64) ([]domain.Transaction, error)
	UserID(ctx context.Context, login string) (int64, error)
	Settle(ctx context.Context, id string, status domain.TxStatus, credit *domain.Record) error
}

// Settler approves or fails pending transactions once they are old enough.
type Settler struct {
	repo        SettlementRepository
	clock       clock.Clock
	interval    time.Duration
	delay       time.Duration
	failureRate float64
	opening     decimal.Decimal

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSettler(repo SettlementRepository, cfg *config.ServerConfig, clk clock.Clock, rng *rand.Rand) *Settler {
	return &Settler{
		repo:        repo,
		clock:       clk,
		interval:    cfg.SettleInterval,
		delay:       cfg.SettleDelay,
		failureRate: cfg.FailureRate,
		opening:     decimal.NewFromFloat(cfg.OpeningBalance),
		rng:         rng,
	}
}

// Run settles due transactions every interval until ctx is done.
func (s *Settler) Run(ctx context.Context) {
	task := s.clock.Every(s.interval, func() {
		if _, err := s.SettleDue(ctx); err != nil && ctx.Err() == nil {
			logger.Log.Error("error while settling transactions", logger.Error(err))
		}
	})

	<-ctx.Done()
	task.Stop()
}

// SettleDue settles every pending transaction older than the settle delay
// and returns how many it settled.
func (s *Settler) SettleDue(ctx context.Context) (int, error) {
	records, err := s.repo.PendingBefore(ctx, s.clock.Now().Add(-s.delay))
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}

		status, credit, err := s.decide(ctx, rec)
		if err != nil {
			logger.Log.Error("error while deciding transaction", logger.String("id", rec.ID), logger.Error(err))
			continue
		}

		err = s.repo.Settle(ctx, rec.ID, status, credit)
		if errors.Is(err, domain.ErrTransactionNotFound) {
			continue
		}
		if err != nil {
			logger.Log.Error("error while settling transaction", logger.String("id", rec.ID), logger.Error(err))
			continue
		}

		settled++
		logger.Log.Info("transaction settled",
			logger.String("id", rec.ID),
			logger.String("type", string(rec.Type)),
			logger.String("status", string(status)),
		)
	}

	return settled, nil
}

func (s *Settler) decide(ctx context.Context, rec domain.Record) (domain.TxStatus, *domain.Record, error) {
	if !rec.Type.Credits() {
		txs, err := s.repo.Transactions(ctx, rec.UserID)
		if err != nil {
			return "", nil, fmt.Errorf("error fetching balance: %w", err)
		}
		if balance.Calculate(txs, s.opening).LessThan(rec.Amount) {
			logger.Log.Info("insufficient funds", logger.String("id", rec.ID), logger.Int64("user_id", rec.UserID))
			return domain.StatusFailed, nil, nil
		}
	}

	var recipientID int64
	if rec.Type == domain.TxTransfer {
		recipient, ok := Recipient(rec.Details)
		if !ok || recipient == rec.Owner {
			return domain.StatusFailed, nil, nil
		}

		id, err := s.repo.UserID(ctx, recipient)
		if errors.Is(err, domain.ErrUserNotFound) {
			logger.Log.Info("unknown recipient", logger.String("id", rec.ID), logger.String("recipient", recipient))
			return domain.StatusFailed, nil, nil
		}
		if err != nil {
			return "", nil, err
		}
		recipientID = id
	}

	if s.fails() {
		return domain.StatusFailed, nil, nil
	}

	if rec.Type != domain.TxTransfer {
		return domain.StatusApproved, nil, nil
	}

	return domain.StatusApproved, &domain.Record{
		Transaction: domain.Transaction{
			ID:        uuid.NewString(),
			Type:      domain.TxReceive,
			Amount:    rec.Amount,
			Timestamp: s.clock.Now().UTC(),
			Status:    domain.StatusApproved,
			Details:   "From: " + rec.Owner,
		},
		UserID: recipientID,
	}, nil
}

func (s *Settler) fails() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.failureRate
}

// Recipient extracts the counterparty from transfer details of the form
// "To: <name>".
func Recipient(details string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(details), "To:")
	if !ok {
		return "", false
	}
	name := strings.TrimSpace(rest)
	return name, name != ""
}
