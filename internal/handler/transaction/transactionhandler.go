package transactionhandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/internal/handler/middleware"
	"github.com/paper-piper/Dini/pkg/dto"
	"github.com/paper-piper/Dini/pkg/logger"
)

type TransactionService interface {
	Create(ctx context.Context, userID int64, req dto.CreateTransaction) (domain.Transaction, error)
	Transactions(ctx context.Context, userID int64) ([]domain.Transaction, error)
}

type TransactionHandler struct {
	srv TransactionService
}

func New(srv TransactionService) *TransactionHandler {
	return &TransactionHandler{
		srv: srv,
	}
}

func (h TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserID(r)
	if err != nil {
		logger.Log.Error("error while parsing user ID from header", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			logger.Log.Error("error while closing request body", logger.Error(err))
		}
	}(r.Body)

	var req dto.CreateTransaction
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.Warn("error while decoding a transaction request", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	tx, err := h.srv.Create(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidDraft) {
			logger.Log.Warn("invalid transaction", logger.Int64("user_id", userID), logger.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Log.Error("error while creating transaction", logger.Int64("user_id", userID), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(dto.FromDomain(tx)); err != nil {
		logger.Log.Error("error while encoding transaction to JSON", logger.Error(err))
	}
}

func (h TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserID(r)
	if err != nil {
		logger.Log.Error("error while parsing user ID from header", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	txs, err := h.srv.Transactions(r.Context(), userID)
	if err != nil {
		logger.Log.Error("error while fetching transactions", logger.Int64("user_id", userID), logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	dtos := make([]dto.Transaction, len(txs))
	for i, tx := range txs {
		dtos[i] = dto.FromDomain(tx)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		logger.Log.Error("error while encoding transactions to JSON", logger.Error(err))
	}
}
