package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/paper-piper/Dini/internal/config"
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/pkg/logger"
)

const (
	SessionIDHeader  = "Session-Id"
	UserIDHeader     = "User-ID"
	SessionKeyHeader = "Session-Key"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.ServerSession, error)
}

// WithAuth resolves the Session-Id header to a live session and passes the
// user id and session key on to handlers as headers.
func WithAuth(cfg *config.ServerConfig, auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, ignore := range cfg.AuthDisabledURLs {
				if strings.HasSuffix(r.URL.Path, ignore) {
					next.ServeHTTP(w, r)
					return
				}
			}

			r.Header.Del(UserIDHeader)
			r.Header.Del(SessionKeyHeader)

			token := r.Header.Get(SessionIDHeader)
			if token == "" {
				logger.Log.Warn("unauthorized request", logger.String("url", r.RequestURI))
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			sess, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrSessionNotFound) {
					logger.Log.Warn("unauthorized request", logger.String("url", r.RequestURI), logger.Error(err))
					http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
					return
				}
				logger.Log.Error("error while authenticating request", logger.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			r.Header.Set(UserIDHeader, strconv.FormatInt(sess.UserID, 10))
			r.Header.Set(SessionKeyHeader, sess.ID)

			next.ServeHTTP(w, r)
		})
	}
}

// UserID reads the id WithAuth stored on the request.
func UserID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.Header.Get(UserIDHeader), 10, 64)
}
