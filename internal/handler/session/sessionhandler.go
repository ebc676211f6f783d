package sessionhandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/internal/handler/middleware"
	"github.com/paper-piper/Dini/pkg/logger"
)

type SessionService interface {
	Heartbeat(ctx context.Context, sessionID string) error
	ConnectedUsers(ctx context.Context, userID int64) ([]string, error)
}

type SessionHandler struct {
	srv SessionService
}

func New(srv SessionService) *SessionHandler {
	return &SessionHandler{
		srv: srv,
	}
}

func (h SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	err := h.srv.Heartbeat(r.Context(), r.Header.Get(middleware.SessionKeyHeader))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		logger.Log.Error("error while recording heartbeat", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h SessionHandler) ConnectedUsers(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserID(r)
	if err != nil {
		logger.Log.Error("error while parsing user ID from header", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	users, err := h.srv.ConnectedUsers(r.Context(), userID)
	if err != nil {
		logger.Log.Error("error while listing connected users", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(users); err != nil {
		logger.Log.Error("error while encoding users to JSON", logger.Error(err))
	}
}
