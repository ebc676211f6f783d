package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paper-piper/Dini/internal/config"
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/stretchr/testify/assert"
)

type fakeAuthenticator struct {
	sessions map[string]*domain.ServerSession
	err      error
}

func (a fakeAuthenticator) Authenticate(_ context.Context, token string) (*domain.ServerSession, error) {
	if a.err != nil {
		return nil, a.err
	}
	s, ok := a.sessions[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

func TestWithAuth(t *testing.T) {
	cfg := &config.ServerConfig{AuthDisabledURLs: []string{"/login", "/register"}}
	auth := fakeAuthenticator{sessions: map[string]*domain.ServerSession{
		"good": {ID: "s1", UserID: 42},
	}}

	tests := []struct {
		name     string
		auth     Authenticator
		path     string
		token    string
		forged   string
		want     int
		wantUser string
	}{
		{name: "open path", auth: auth, path: "/login", want: http.StatusOK},
		{name: "no token", auth: auth, path: "/transactions", want: http.StatusUnauthorized},
		{name: "unknown token", auth: auth, path: "/transactions", token: "bad", want: http.StatusUnauthorized},
		{name: "live session", auth: auth, path: "/transactions", token: "good", want: http.StatusOK, wantUser: "42"},
		{name: "forged user header", auth: auth, path: "/transactions", token: "good", forged: "7", want: http.StatusOK, wantUser: "42"},
		{name: "store failure", auth: fakeAuthenticator{err: errors.New("db down")}, path: "/transactions", token: "good", want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser, gotSession string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = r.Header.Get(UserIDHeader)
				gotSession = r.Header.Get(SessionKeyHeader)
			})

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set(SessionIDHeader, tt.token)
			}
			if tt.forged != "" {
				req.Header.Set(UserIDHeader, tt.forged)
			}
			rec := httptest.NewRecorder()

			WithAuth(cfg, tt.auth)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.wantUser, gotUser)
			if tt.wantUser != "" {
				assert.Equal(t, "s1", gotSession)
			}
		})
	}
}
