package server

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/paper-piper/Dini/internal/clock"
	"github.com/paper-piper/Dini/internal/config"
	"github.com/paper-piper/Dini/internal/postgres"
	"github.com/paper-piper/Dini/internal/service"
)

// Repository is everything the services need from storage.
type Repository interface {
	service.UserRepository
	service.SessionRepository
	service.TransactionRepository
	service.SettlementRepository
}

// App is the reference wallet server: the HTTP API over Postgres plus the
// settlement loop.
type App struct {
	Config *config.ServerConfig
	DB     *sql.DB

	sessions *service.SessionService
	users    *service.UserService
	txs      *service.TransactionService
	settler  *service.Settler
}

func New(ctx context.Context, cfg *config.ServerConfig) (*App, error) {
	db, err := initDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	store := postgres.New(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	now := time.Now()
	rng := rand.New(rand.NewPCG(uint64(now.UnixNano()), uint64(now.Unix())))

	a := newApp(cfg, store, clock.New(), rng)
	a.DB = db
	return a, nil
}

func newApp(cfg *config.ServerConfig, store Repository, clk clock.Clock, rng *rand.Rand) *App {
	sessions := service.NewSessionService(store, cfg, clk)

	return &App{
		Config:   cfg,
		sessions: sessions,
		users:    service.NewUserService(store, sessions),
		txs:      service.NewTransactionService(store, clk),
		settler:  service.NewSettler(store, cfg, clk, rng),
	}
}

func initDB(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = db.PingContext(ctx); err != nil {
		err := db.Close()
		if err != nil {
			return nil, fmt.Errorf("error closing database after ping failure: %w", err)
		}
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	return db, nil
}

// Run settles pending transactions until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.settler.Run(ctx)
	return nil
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
