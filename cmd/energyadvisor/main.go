package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raterudder/energyadvisor/pkg/api"
	"github.com/raterudder/energyadvisor/pkg/log"
	"github.com/raterudder/energyadvisor/pkg/monitor"
	"github.com/raterudder/energyadvisor/pkg/server"
	"github.com/raterudder/energyadvisor/pkg/storage"

	"github.com/levenlabs/go-lflag"
)

func main() {
	// init packages
	c := api.Configured()
	s := storage.Configured()
	m := monitor.Configured(c)

	// init server
	srv := server.Configured(c, s, m)

	// parse flags
	lflag.Configure()

	// lflag sets llog's level, slog needs to follow it
	if err := log.Configure(); err != nil {
		panic(err)
	}

	// run returns before exiting so its deferred cleanup always happens
	if err := run(srv, s); err != nil {
		os.Exit(1)
	}
}

type runner interface {
	Run(ctx context.Context) error
}

// run serves until a signal arrives and closes storage on the way out.
func run(srv runner, s storage.Store) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// storage was opened inside lflag.Do, a failure there would have panicked
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	// Run blocks until the context is canceled or the server fails
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
	return nil
}
