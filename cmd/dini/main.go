package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/paper-piper/Dini/internal/app"
	"github.com/paper-piper/Dini/internal/config"
	"github.com/paper-piper/Dini/pkg/logger"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: dini [flags] <command> [args]\n\ncommands:\n%s\nflags:\n", usage)
		flag.PrintDefaults()
	}

	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	if err = logger.Initialize(cfg.LogLevel); err != nil {
		log.Fatalf("error starting logger: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		logger.Log.Fatal("error creating app", logger.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err = newCLI(a, os.Stdin, os.Stdout).run(ctx, flag.Args())

	cancel()
	if closeErr := a.Close(); closeErr != nil {
		logger.Log.Error("error closing app", logger.Error(closeErr))
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "dini:", err)
		os.Exit(1)
	}
}
