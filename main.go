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
	"fundingflow/internal/archive"
	"fundingflow/internal/catalog"
	"fundingflow/internal/fetcher"
	"fundingflow/internal/scheduler"
	"fundingflow/internal/scraper"
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
	sweepOnce := flag.Bool("sweep", false, "Run a single retention sweep and exit")

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
	}).Info("starting fundingflow")

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

	st := store.New(db)
	if err := st.Migrate(ctx); err != nil {
		log.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	cat, err := catalog.Load(cfg.Catalog.InstrumentsPath, cfg.Catalog.CoinsPath)
	if err != nil {
		log.WithError(err).Error("Failed to load instrument catalog")
		os.Exit(1)
	}

	var sweeper *archive.Sweeper
	if cfg.Retention.Enabled {
		sweeper, err = archive.NewSweeper(cfg, st)
		if err != nil {
			log.WithError(err).Error("Failed to build retention sweeper")
			os.Exit(1)
		}
	}

	if *sweepOnce {
		if sweeper == nil {
			log.Error("retention is disabled, nothing to sweep")
			os.Exit(1)
		}
		if err := sweeper.Sweep(ctx); err != nil {
			log.WithError(err).Error("retention sweep failed")
			os.Exit(1)
		}
		log.Info("retention sweep completed")
		return
	}

	adapters := fetcher.NewAdapters(cfg)
	if len(adapters) == 0 {
		log.Error("no exchanges enabled")
		os.Exit(1)
	}

	jobs := make([]scheduler.Job, 0, len(adapters))
	for _, a := range adapters {
		instruments := cat.Instruments(a.Exchange())
		if len(instruments) == 0 {
			log.WithFields(logger.Fields{"exchange": a.Exchange()}).Warn("no instruments configured, skipping exchange")
			continue
		}
		jobs = append(jobs, scraper.New(a, st, instruments, cfg.Scraper))
	}

	sched := scheduler.New(cfg.Scheduler, jobs)
	if err := sched.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to start scheduler")
		os.Exit(1)
	}

	if sweeper != nil {
		go runSweepLoop(ctx, sweeper, log)
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping scheduler")
	sched.Stop()

	log.Info("fundingflow stopped")
}

// runSweepLoop triggers a retention sweep once a day until the context ends.
func runSweepLoop(ctx context.Context, sweeper *archive.Sweeper, log *logger.Log) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweeper.Sweep(ctx); err != nil {
				log.WithError(err).Warn("retention sweep failed")
			}
		}
	}
}
