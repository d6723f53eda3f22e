package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"cryptodash/internal/api"
	"cryptodash/internal/config"
	"cryptodash/internal/exchange"
	"cryptodash/internal/httpapi"
	"cryptodash/internal/metrics"
	"cryptodash/internal/pricing"
	"cryptodash/internal/risk"
	"cryptodash/internal/store"
	"cryptodash/internal/updater"
	"cryptodash/internal/util"
)

func main() {
	configPath := flag.String("config", os.Getenv("CRYPTODASH_CONFIG"), "path to YAML config file")
	refreshOnStart := flag.Bool("refresh", false, "start a data refresh when no catalog exists")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := util.NewLogger(cfg.Logging.Level, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg, *refreshOnStart, logger)
	if err != nil {
		logger.Error("server exited", zap.Error(err))
	}
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, refreshOnStart bool, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Storage.
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return errors.Wrap(err, "creating data dir")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return errors.Wrap(err, "creating sqlite dir")
	}
	catalog, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer catalog.Close()
	snapshots := store.NewParquetStore(cfg.Storage.DataDir)

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	// Upstreams.
	binance := exchange.NewBinance(cfg.Sources.Binance)
	coingecko := exchange.NewCoinGecko(cfg.Sources.CoinGecko)
	alpaca := exchange.NewAlpaca(cfg.Sources.Alpaca)

	health := api.NewHealthService()

	runner := updater.NewRunner(ctx, updater.Deps{
		Tracker:         updater.NewTracker(),
		Pairs:           binance,
		Markets:         coingecko,
		Snapshots:       snapshots,
		Catalog:         catalog,
		Runs:            catalog,
		Metrics:         rec,
		Logger:          logger,
		OnCatalogLoaded: health.SetCatalogLoaded,
	}, updater.Options{
		PerPage:  cfg.Sources.CoinGecko.PerPage,
		MaxPages: cfg.Sources.CoinGecko.MaxPages,
	})
	defer runner.Wait()

	restoreCatalog(ctx, runner, catalog, refreshOnStart, func(n int) {
		health.SetCatalogLoaded(n)
		rec.SetCatalogSize(n)
	}, logger)

	var lendingSource risk.Source
	if cfg.Sources.Lending.URL != "" {
		lendingSource = risk.NewHTTPSource(cfg.Sources.Lending.URL, cfg.Sources.Lending.Timeout)
	}

	handler := httpapi.NewServer(httpapi.Deps{
		Catalog:   catalog,
		Refresher: runner,
		Pricer: &pricing.Resolver{
			Binance:   binance,
			Alpaca:    alpaca,
			CoinGecko: coingecko,
			Metrics:   rec,
			Log:       logger,
		},
		Lending:  risk.NewManager(lendingSource, cfg.Sources.Lending.CriticalBelow, cfg.Sources.Lending.RiskyBelow, rec),
		Metrics:  rec,
		Gatherer: reg,
		Logger:   logger,
		Origins:  cfg.Server.Origins,
	}).Handler()

	srv := api.NewServer(
		net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort)),
		handler, health, logger,
	)
	logger.Info("cryptodash-server starting",
		zap.Int("port", cfg.Server.Port),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
		zap.String("data_dir", cfg.Storage.DataDir))

	return srv.ListenAndServe(ctx)
}

// restoreCatalog loads the last snapshot into an empty catalog so searches
// work right after a restart.
func restoreCatalog(ctx context.Context, runner *updater.Runner, catalog *store.SQLiteStore, refreshOnStart bool, ready func(int), logger *zap.Logger) {
	if last, err := catalog.LastRun(ctx); err == nil {
		logger.Info("last data refresh",
			zap.String("run_id", last.RunID),
			zap.String("status", string(last.Status)),
			zap.Int("coins", last.Coins),
			zap.Time("finished_at", last.FinishedAt))
	}

	n, err := catalog.CountCoins(ctx)
	if err != nil {
		logger.Warn("counting catalog", zap.Error(err))
	}
	if n > 0 {
		ready(n)
		logger.Info("catalog ready", zap.Int("coins", n))
		return
	}

	n, err = runner.Restore(ctx)
	switch {
	case err == nil:
		logger.Info("catalog restored from snapshot", zap.Int("coins", n))
	case errors.Is(err, store.ErrCatalogMissing):
		logger.Warn("no dataset yet; searches fail until a refresh completes")
		if refreshOnStart {
			if _, err := runner.Start(); err != nil {
				logger.Warn("starting refresh", zap.Error(err))
			}
		}
	default:
		logger.Error("restoring snapshot", zap.Error(err))
	}
}
