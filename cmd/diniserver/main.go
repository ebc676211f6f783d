package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paper-piper/Dini/internal/config"
	"github.com/paper-piper/Dini/internal/server"
	"github.com/paper-piper/Dini/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.LoadServer(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	if err = logger.Initialize(cfg.LogLevel); err != nil {
		log.Fatalf("error starting logger: %v", err)
	}
	defer func() { _ = logger.Log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := server.New(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("error creating app", logger.Error(err))
	}

	if err := run(ctx, a); err != nil {
		logger.Log.Error("server error", logger.Error(err))
	}

	logger.Log.Info("closing database connection")
	if err = a.Close(); err != nil {
		logger.Log.Error("error closing database connection", logger.Error(err))
	}

	logger.Log.Info("shutdown complete")
}

func run(ctx context.Context, a *server.App) error {
	ongoingCtx, cancelOngoingRequests := context.WithCancel(context.Background())
	defer cancelOngoingRequests()

	srv := &http.Server{
		Addr:    a.Config.Addr,
		Handler: a.Router(),
		BaseContext: func(_ net.Listener) context.Context {
			return ongoingCtx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Run(gctx)
	})

	g.Go(func() error {
		logger.Log.Info("starting server",
			logger.String("address", a.Config.Addr),
			logger.Bool("tls", a.Config.TLSEnabled()),
		)

		var err error
		if a.Config.TLSEnabled() {
			err = srv.ListenAndServeTLS(a.Config.TLSCertFile, a.Config.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("stopping server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		cancelOngoingRequests()
		logger.Log.Info("server stopped")
		return err
	})

	return g.Wait()
}
