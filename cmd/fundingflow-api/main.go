package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fundingflow/config"
	"fundingflow/internal/aggregate"
	"fundingflow/internal/api"
	"fundingflow/internal/catalog"
	"fundingflow/internal/store"
	"fundingflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Fundingflow.Name,
		"version": cfg.Fundingflow.Version,
		"addr":    cfg.API.Addr,
	}).Info("starting fundingflow api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Logging.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		interval := cfg.Metrics.CloudWatch.ReportInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		logger.StartReport(ctx, log, interval)
	}

	db, err := store.OpenPostgres(cfg.Storage.Postgres)
	if err != nil {
		log.WithError(err).Error("Failed to open postgres")
		os.Exit(1)
	}
	defer db.Close()
	if err := store.PingCtx(db, 10*time.Second); err != nil {
		log.WithError(err).Error("Failed to reach postgres")
		os.Exit(1)
	}

	cat, err := catalog.Load(cfg.Catalog.InstrumentsPath, cfg.Catalog.CoinsPath)
	if err != nil {
		log.WithError(err).Error("Failed to load instrument catalog")
		os.Exit(1)
	}

	engine := aggregate.NewEngine(store.New(db), cat, cfg.API.FetchDepth)
	server := api.NewServer(cfg.API, engine)
	if err := server.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to start api server")
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	cancel()
	if err := server.Stop(context.Background()); err != nil {
		log.WithError(err).Warn("api server shutdown failed")
	}

	log.Info("fundingflow api stopped")
}
