package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	httpadapter "github.com/mediaforge/sessiond/internal/adapters/http"
	"github.com/mediaforge/sessiond/internal/config"
	"github.com/mediaforge/sessiond/internal/logging"
	"github.com/mediaforge/sessiond/pkg/adapters/memory"
	redisadapter "github.com/mediaforge/sessiond/pkg/adapters/redis"
	"github.com/mediaforge/sessiond/pkg/lock"
	"github.com/mediaforge/sessiond/pkg/ports"
	"github.com/mediaforge/sessiond/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session coordination server",
	Long:  `Starts the HTTP API, the storage backend, and the expiry sweeper.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger := logging.New(cfg.LogLevel)

		var kv ports.Store
		var locker ports.Locker
		switch cfg.Backend {
		case "redis":
			st := redisadapter.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			kv, locker = st, st
		default:
			st := memory.NewStore()
			kv, locker = st, st
		}
		defer func() {
			if err := kv.Close(); err != nil {
				logger.Warn("failed to close storage backend", "err", err)
			}
		}()

		locks := lock.NewManager(locker, lock.Config{
			Lease:         cfg.Lock.Lease.Std(),
			Attempts:      cfg.Lock.Attempts,
			RetryDelay:    cfg.Lock.RetryDelay.Std(),
			AcquireBudget: cfg.Lock.AcquireBudget.Std(),
		}, lock.WithLogger(logger))

		store := session.New(kv, locks, session.Config{
			IdleTimeout:        cfg.Session.IdleTimeout.Std(),
			MaxSessionsPerUser: cfg.Session.MaxSessionsPerUser,
			EndGraceDelay:      cfg.Session.EndGraceDelay.Std(),
			KeyPrefix:          cfg.KeyPrefix,
		},
			session.WithLogger(logger),
			session.WithMetrics(session.NewMetrics(prometheus.DefaultRegisterer)),
		)

		ctx, stopSweeper := context.WithCancel(context.Background())
		defer stopSweeper()
		go session.NewSweeper(store, cfg.Session.SweepInterval.Std()).Run(ctx)

		srv := &http.Server{
			Addr:    cfg.Listen,
			Handler: httpadapter.NewHandler(store, logger),
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("sessiond listening", "addr", srv.Addr, "backend", cfg.Backend)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())
			stopSweeper()

			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("force close: %w", err)
				}
			}
			logger.Info("sessiond stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
