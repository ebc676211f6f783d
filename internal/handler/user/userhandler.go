package userhandler

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

type UserService interface {
	Register(ctx context.Context, username, password string) (string, error)
	Login(ctx context.Context, login, password string) (string, error)
}

type SessionCloser interface {
	Close(ctx context.Context, sessionID string) error
}

type UserHandler struct {
	srv      UserService
	sessions SessionCloser
}

func New(srv UserService, sessions SessionCloser) *UserHandler {
	return &UserHandler{
		srv:      srv,
		sessions: sessions,
	}
}

func (uh *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	auth, ok := decodeAuth(w, r)
	if !ok {
		return
	}

	token, err := uh.srv.Register(r.Context(), auth.Username, auth.Password)
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			http.Error(w, "user already exists", http.StatusConflict)
			return
		}

		logger.Log.Error("error while registering user", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeSession(w, token)
}

func (uh *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	auth, ok := decodeAuth(w, r)
	if !ok {
		return
	}

	token, err := uh.srv.Login(r.Context(), auth.Username, auth.Password)
	if err != nil {
		if errors.Is(err, domain.ErrIncorrectCredentials) {
			http.Error(w, "incorrect login or password", http.StatusUnauthorized)
			return
		}

		logger.Log.Error("error while logging in", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeSession(w, token)
}

func (uh *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	err := uh.sessions.Close(r.Context(), r.Header.Get(middleware.SessionKeyHeader))
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		logger.Log.Error("error while closing session", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func decodeAuth(w http.ResponseWriter, r *http.Request) (dto.Auth, bool) {
	var auth dto.Auth

	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			logger.Log.Error("error while closing request body", logger.Error(err))
		}
	}(r.Body)

	if err := json.NewDecoder(r.Body).Decode(&auth); err != nil {
		logger.Log.Warn("error while decoding an auth request")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return auth, false
	}

	if err := auth.IsValid(); err != nil {
		logger.Log.Warn("invalid auth fields", logger.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return auth, false
	}

	return auth, true
}

func writeSession(w http.ResponseWriter, token string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dto.Session{SessionID: token}); err != nil {
		logger.Log.Error("error while encoding session to JSON", logger.Error(err))
	}
}
