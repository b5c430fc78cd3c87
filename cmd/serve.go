package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"transmute/config"
	"transmute/logger"
	"transmute/store"
)

// ServeCmd runs the HTTP API, by default with the worker pool in the same
// process.
func ServeCmd(cfg *config.Config) *cobra.Command {
	var (
		withWorker  bool
		autoMigrate bool
	)
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the worker pool unless --worker=false)",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Info("Starting transmute server initialization")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if autoMigrate {
				if err := migrate(ctx, a.store); err != nil {
					return err
				}
			}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				cleanupRoutine(ctx, a.ledger, cfg.UploadDir, cfg.OutputDir)
			}()

			if withWorker {
				w := a.worker()
				wg.Add(1)
				go func() {
					defer wg.Done()
					w.Run(ctx)
				}()
			}

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           a.server().Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			serveErr := make(chan error, 1)
			go func() {
				logger.Infof("transmute server listening on %s", cfg.HTTPAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				if err != nil {
					stop()
					waitOrTimeout(&wg, cfg.ShutdownTimeout)
					return err
				}
			case <-ctx.Done():
				logger.Info("Shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Errorf("HTTP shutdown: %v", err)
			}
			waitOrTimeout(&wg, cfg.ShutdownTimeout)
			logger.Info("Server stopped")
			return nil
		},
	}
	serveCmd.Flags().BoolVar(&withWorker, "worker", true, "run the worker pool in this process")
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply the Postgres schema before serving")
	return serveCmd
}

// WorkerCmd runs only the worker pool.
func WorkerCmd(cfg *config.Config) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the worker pool without the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			logger.Info("Press Ctrl+C to shut down gracefully.")
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.worker().Run(ctx)
			}()

			<-ctx.Done()
			logger.Info("Shutdown signal received, waiting for in-flight jobs")
			waitOrTimeout(&wg, cfg.ShutdownTimeout)
			return nil
		},
	}
	workerCmd.Flags().IntVar(&cfg.WorkerCount, "count", cfg.WorkerCount, "number of worker loops")
	return workerCmd
}

// waitOrTimeout bounds how long shutdown waits for running jobs.
func waitOrTimeout(wg *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warnf("Gave up waiting for workers after %v", timeout)
	}
}

// MigrateCmd creates the Postgres jobs table.
func MigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the jobs table (postgres store only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := store.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			return migrate(ctx, s)
		},
	}
}

func migrate(ctx context.Context, s store.Store) error {
	pg, ok := s.(*store.Postgres)
	if !ok {
		logger.Info("Embedded job store needs no migration")
		return nil
	}
	if err := pg.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("Postgres schema applied")
	return nil
}
