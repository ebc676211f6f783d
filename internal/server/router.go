package server

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/paper-piper/Dini/internal/handler/middleware"
	"github.com/paper-piper/Dini/internal/handler/session"
	"github.com/paper-piper/Dini/internal/handler/transaction"
	"github.com/paper-piper/Dini/internal/handler/user"
)

func (a *App) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5, "application/json"))
	r.Use(middleware.WithAuth(a.Config, a.sessions))

	userHandler := userhandler.New(a.users, a.sessions)
	sessionHandler := sessionhandler.New(a.sessions)
	transactionHandler := transactionhandler.New(a.txs)

	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Post("/logout", userHandler.Logout)

	r.Post("/heartbeat", sessionHandler.Heartbeat)
	r.Get("/connected-users", sessionHandler.ConnectedUsers)

	r.Get("/transactions", transactionHandler.List)
	r.Post("/transactions", transactionHandler.Create)

	return r
}
