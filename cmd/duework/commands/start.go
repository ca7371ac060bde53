package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ldg-erp/duework/config"
	"github.com/ldg-erp/duework/invoice"
	"github.com/ldg-erp/duework/job"
	"github.com/ldg-erp/duework/logger"
	"github.com/ldg-erp/duework/mail"
)

// StartCmd runs the worker daemon
var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the duework daemon",
	Long: `Start the duework daemon in foreground mode.

The daemon will:
- Recover jobs orphaned by a previous crash
- Start the worker pool and process due jobs
- Serve Prometheus metrics when enabled
- Reload configuration when the user config file changes
- Run until interrupted (Ctrl+C) with graceful shutdown

Example:
  duework start               # Start with configured concurrency
  duework start --workers 3   # Override worker concurrency`,
	RunE: runStart,
}

func init() {
	StartCmd.Flags().Int("workers", 0, "Number of concurrent workers (0 = use configuration)")
	StartCmd.Flags().String("db", "", "Database path (overrides configuration)")
}

func runStart(cmd *cobra.Command, args []string) error {
	workers, _ := cmd.Flags().GetInt("workers")
	dbPath, _ := cmd.Flags().GetString("db")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if workers > 0 {
		cfg.Worker.Concurrency = workers
	}

	database, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	// Wire handlers
	invoiceStore := invoice.NewStore(database)
	sender := mail.NewLogSender()
	var limiter *mail.Limiter
	if cfg.Mail.MaxPerMinute > 0 {
		limiter = mail.NewLimiter(cfg.Mail.MaxPerMinute)
	}

	var metrics *job.Metrics
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(job.NewStoreCollector(job.NewStore(database)))
		metrics = job.NewMetrics(reg)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorw("Metrics server failed", "error", err)
			}
		}()
	}

	registry := job.NewRegistry()
	registry.Register(invoice.NewReminderHandler(invoiceStore, sender, limiter, cfg.Mail.BaseURL))

	queue := job.NewQueue(database, registry, job.Options{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: time.Duration(cfg.Queue.BackoffBaseMS) * time.Millisecond,
	}, metrics)
	registry.Register(invoice.NewRecurringHandler(invoiceStore, queue, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := job.NewPool(ctx, queue, registry, job.PoolConfig{
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: time.Duration(cfg.Worker.PollIntervalMS) * time.Millisecond,
		JobTimeout:   time.Duration(cfg.Worker.JobTimeoutSeconds) * time.Second,
		StopTimeout:  time.Duration(cfg.Worker.StopTimeoutSeconds) * time.Second,
	}, logger.Logger, metrics)
	pool.Start()

	// Pick up edits to the user config file while running
	watcher, err := config.NewConfigWatcher(config.UserConfigPath())
	if err != nil {
		logger.Warnw("Config watcher unavailable", "error", err)
	} else {
		watcher.OnReload(func(reloaded *config.Config) error {
			logger.Infow("Configuration reloaded",
				"worker_concurrency", reloaded.Worker.Concurrency,
				"queue_max_attempts", reloaded.Queue.MaxAttempts,
			)
			return nil
		})
		watcher.Start()
		config.SetGlobalWatcher(watcher)
	}

	// Purge old terminal jobs once at startup
	if cfg.Queue.RetentionDays > 0 {
		retention := time.Duration(cfg.Queue.RetentionDays) * 24 * time.Hour
		if removed, err := queue.Cleanup(ctx, retention); err != nil {
			logger.Warnw("Job cleanup failed", "error", err)
		} else if removed > 0 {
			logger.Infow("Purged old jobs", "count", removed)
		}
	}

	fmt.Println("duework daemon started")
	fmt.Printf("  Database: %s\n", cfg.GetDatabasePath())
	fmt.Printf("  Workers: %d\n", cfg.Worker.Concurrency)
	fmt.Printf("  Poll interval: %dms\n", cfg.Worker.PollIntervalMS)
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics: http://%s/metrics\n", cfg.Metrics.Addr)
	}
	fmt.Println("\nPress Ctrl+C for graceful shutdown")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")

	// Stop components in reverse order of startup
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warnw("Config watcher stop failed", "error", err)
		}
	}
	pool.Stop()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("Metrics server shutdown failed", "error", err)
		}
	}

	fmt.Println("duework daemon stopped")
	return nil
}
