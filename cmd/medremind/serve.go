package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"medication-reminder/internal/adapters/auth/iam"
	"medication-reminder/internal/adapters/events/redpanda"
	"medication-reminder/internal/adapters/notify/pushgateway"
	pg "medication-reminder/internal/adapters/storage/postgres"
	"medication-reminder/internal/domain/reminders"
	"medication-reminder/internal/middleware"
	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/platform/metrics"
	"medication-reminder/internal/platform/tracing"
	"medication-reminder/internal/ports/auth"
	"medication-reminder/internal/ports/events"
	"medication-reminder/internal/ports/notify"
	"medication-reminder/internal/router"

	"github.com/spf13/cobra"
)

var version = "dev"

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reminder dispatcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "Apply pending migrations before serving")
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if zl, ok := log.(*logger.ZapLogger); ok {
		defer func() { _ = zl.Sync() }()
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(sctx)
	}()

	m := metrics.New()

	// Storage: sin DSN queda in-memory (modo dev)
	var db *sql.DB
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		db, err = pg.Open(ctx, dsn)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if migrateOnStart {
			n, err := pg.ApplyMigrations(ctx, db)
			if err != nil {
				return err
			}
			log.Info("migrations applied", map[string]any{"count": n})
		}
	} else {
		log.Warn("database.dsn empty, using in-memory storage", nil)
	}

	// Auth: sin IAM queda el header X-Debug-User-ID
	var verifier auth.AuthVerifier
	iamClient, err := iam.NewClient(iam.Config{
		BaseURL: cfg.Auth.IAM.BaseURL,
		APIKey:  cfg.Auth.IAM.APIKey,
		Timeout: cfg.Auth.IAM.Timeout,
	})
	if err != nil {
		return err
	}
	if iamClient.IsConfigured() {
		verifier = iam.NewVerifier(iamClient)
	} else {
		log.Warn("auth.iam not configured, dev auth via X-Debug-User-ID", nil)
	}

	readyChecks := map[string]func(context.Context) error{}

	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := redpanda.NewPublisher(redpanda.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, log)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
		readyChecks["broker"] = p.Ping
	}

	opts := router.Options{
		AuthVerifier:           verifier,
		DB:                     db,
		Logger:                 log,
		Metrics:                m,
		Publisher:              publisher,
		PostponeWindow:         cfg.Reminders.PostponeWindow,
		DefaultTZOffsetMinutes: cfg.Reminders.DefaultTZOffsetMinutes,
		RecordRateLimit: middleware.RateLimitOptions{
			RPS:   cfg.RateLimit.RecordPerSecond,
			Burst: cfg.RateLimit.RecordBurst,
		},
		ServiceName: cfg.App.Name,
		ReadyChecks: readyChecks,
	}
	svcs := router.BuildServices(opts)
	opts.Services = &svcs

	var dispatcher *reminders.Dispatcher
	if cfg.Reminders.DispatchEnabled {
		dispatcher, err = reminders.NewDispatcher(svcs.Reminders, buildNotifier(cfg.Notify.Push.BaseURL, cfg.Notify.Push.APIKey, cfg.Notify.Push.Timeout, log), reminders.DispatcherOptions{
			Schedule:        cfg.Reminders.DispatchSchedule,
			Lookahead:       cfg.Reminders.Lookahead,
			TZOffsetMinutes: cfg.Reminders.DefaultTZOffsetMinutes,
			Logger:          log,
			Metrics:         m,
		})
		if err != nil {
			return err
		}
		if err := dispatcher.Start(ctx); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.NewRouter(opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", map[string]any{"addr": srv.Addr, "version": version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if dispatcher != nil {
		if err := dispatcher.Stop(shutdownCtx); err != nil {
			log.Warn("dispatcher stop", map[string]any{"error": err})
		}
	}
	return srv.Shutdown(shutdownCtx)
}

func buildNotifier(baseURL, apiKey string, timeout time.Duration, log logger.Logger) notify.Notifier {
	client, err := pushgateway.NewClient(pushgateway.Config{BaseURL: baseURL, APIKey: apiKey, Timeout: timeout})
	if err != nil || !client.IsConfigured() {
		if err != nil {
			log.Warn("push gateway misconfigured, reminders only logged", map[string]any{"error": err})
		}
		return pushgateway.LogNotifier{Log: log}
	}
	return pushgateway.NewNotifier(client)
}
