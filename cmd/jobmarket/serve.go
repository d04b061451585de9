package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zerverless/jobmarket/internal/api"
	"github.com/zerverless/jobmarket/internal/check"
	"github.com/zerverless/jobmarket/internal/config"
	"github.com/zerverless/jobmarket/internal/custody"
	"github.com/zerverless/jobmarket/internal/db"
	"github.com/zerverless/jobmarket/internal/feed"
	"github.com/zerverless/jobmarket/internal/job"
	"github.com/zerverless/jobmarket/internal/logging"
	"github.com/zerverless/jobmarket/internal/market"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a marketplace node",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default jobmarket.yaml in . or ./config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logging.Initialize(cfg.Log.Level, cfg.Log.Format); err != nil {
		return errors.Wrap(err, "initialize logger")
	}
	logger := logging.ComponentLogger("serve")

	kv, err := db.Open(db.Options{
		Driver:     cfg.Storage.Driver,
		DataDir:    cfg.Storage.DataDir,
		SQLitePath: cfg.Storage.SQLitePath,
	})
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer kv.Close()

	ledger := custody.NewLedger(kv)
	registry := job.NewRegistry(kv, ledger)
	bus := feed.NewBus()
	subscribers := feed.NewManager()
	svc := market.NewService(registry, ledger, check.NewRunner(cfg.Checks.Timeout), bus)

	handler := api.WithCORS(api.NewRouter(cfg, svc, bus, subscribers), cfg.HTTP.CORSOrigins)
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infow("node listening",
			"node_id", cfg.NodeID,
			logging.FieldAddress, cfg.Addr(),
			"storage", cfg.Storage.Driver,
			"faucet", cfg.Ledger.Faucet)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Infow("node stopped")
	return nil
}
