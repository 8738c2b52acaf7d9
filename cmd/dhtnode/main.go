package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/ringdht/internal/config"
	"github.com/danmuck/ringdht/internal/logging"
	"github.com/danmuck/ringdht/internal/node"
	"github.com/rs/zerolog/log"
)

const leaveTimeout = 10 * time.Second

func main() {
	path := flag.String("config", "cmd/dhtnode/config.toml", "node config path")
	flag.Parse()

	logging.ConfigureRuntime()
	if err := run(*path); err != nil {
		fmt.Fprintf(os.Stderr, "dhtnode: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	st, err := cfg.OpenStore()
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := node.NewService(cfg.Service, st)
	runErr := svc.Run(ctx)

	if cfg.Service.LeaveOnShutdown {
		leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		err := svc.Leave(leaveCtx)
		switch {
		case err == nil:
		case errors.Is(err, node.ErrNoSuccessor), errors.Is(err, node.ErrNotMember):
			log.Info().Err(err).Msg("dhtnode: nothing to hand off")
		default:
			log.Error().Err(err).Msg("dhtnode: leave failed")
		}
	}
	return runErr
}
