package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/paper-piper/Dini/internal/clock"
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/pkg/dto"
	"github.com/paper-piper/Dini/pkg/logger"
)

type TransactionRepository interface {
	CreateTransaction(ctx context.Context, rec domain.Record) error
	Transactions(ctx context.Context, userID int64) ([]domain.Transaction, error)
}

type TransactionService struct {
	repo  TransactionRepository
	clock clock.Clock
}

func NewTransactionService(repo TransactionRepository, clk clock.Clock) *TransactionService {
	return &TransactionService{
		repo:  repo,
		clock: clk,
	}
}

// Create stores a pending transaction for userID. Invalid requests are
// reported as domain.ErrInvalidDraft.
func (s *TransactionService) Create(ctx context.Context, userID int64, req dto.CreateTransaction) (domain.Transaction, error) {
	if err := validateCreate(req); err != nil {
		return domain.Transaction{}, err
	}

	rec := domain.Record{
		Transaction: domain.Transaction{
			ID:        uuid.NewString(),
			Type:      domain.TxType(req.Type),
			Amount:    req.Amount,
			Timestamp: s.clock.Now().UTC(),
			Status:    domain.StatusPending,
			Details:   req.Details,
		},
		UserID: userID,
	}

	if err := s.repo.CreateTransaction(ctx, rec); err != nil {
		return domain.Transaction{}, err
	}

	logger.Log.Info("transaction created",
		logger.String("id", rec.ID),
		logger.String("type", req.Type),
		logger.Int64("user_id", userID),
	)
	return rec.Transaction, nil
}

func (s *TransactionService) Transactions(ctx context.Context, userID int64) ([]domain.Transaction, error) {
	return s.repo.Transactions(ctx, userID)
}

// validateCreate accepts the client-creatable types only; receive records are
// produced by settlement.
func validateCreate(req dto.CreateTransaction) error {
	typ := domain.TxType(req.Type)
	if !typ.Valid() || typ == domain.TxReceive {
		return fmt.Errorf("%w: invalid transaction type %q", domain.ErrInvalidDraft, req.Type)
	}
	if req.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", domain.ErrInvalidDraft)
	}
	if req.Status != "" && req.Status != string(domain.StatusPending) {
		return fmt.Errorf("%w: new transactions must be pending", domain.ErrInvalidDraft)
	}
	return nil
}
