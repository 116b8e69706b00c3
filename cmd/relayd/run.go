package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"

	"archean-status-relay/config"
	"archean-status-relay/internal/api"
	"archean-status-relay/internal/db"
	"archean-status-relay/internal/directory"
	"archean-status-relay/internal/kv"
	"archean-status-relay/internal/notification"
	"archean-status-relay/internal/relay"
	"archean-status-relay/internal/scheduler"
	"archean-status-relay/internal/snapshot"
	"archean-status-relay/internal/stats"
	"archean-status-relay/internal/statusboard"
	"archean-status-relay/internal/store"
	"archean-status-relay/internal/waitlist"
)

const shutdownTimeout = 10 * time.Second

// run starts the relay and blocks until ctx is cancelled or a termination signal arrives.
func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	appStore := store.NewGormStore(gormDB)
	defer func() {
		if err := appStore.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}()

	doc, err := kv.Open(cfg.KV.Path)
	if err != nil {
		return fmt.Errorf("open kv document: %w", err)
	}

	webhooks := notification.NewWebhookClient(nil)

	var pushOptions *webpush.Options
	var direct notification.DirectSink
	if cfg.Push.Enabled() {
		pushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
			HTTPClient:      &http.Client{Timeout: notification.PushTimeout},
		}
		direct = notification.NewWebPushSink(appStore, pushOptions)
	} else {
		log.Warn().Msg("VAPID keys are not configured, reminders are delivered through fallback locations only")
	}
	var fallback notification.FallbackSink
	if len(cfg.Webhooks.Fallback) > 0 {
		fallback = notification.NewWebhookSink(webhooks, cfg.Webhooks.Fallback)
	}

	snapshots := snapshot.NewStore()
	matcher := waitlist.NewMatcher(appStore, notification.Combine(direct, fallback))
	recorder := stats.NewRecorder(appStore)

	deps := relay.Deps{
		Fetcher:   directory.NewClient(cfg.Directory),
		Snapshots: snapshots,
		Waitlist:  matcher,
		Recorder:  recorder,
	}

	if cfg.Webhooks.StatusURL != "" {
		deps.Board = statusboard.New(
			notification.NewWebhookPublisher(webhooks, cfg.Webhooks.StatusURL),
			doc,
			statusboard.Options{HideAddress: cfg.Tracking.HideAddress, Domain: cfg.Tracking.Domain},
		)
	}

	var feed *notification.WorkerPool
	if cfg.Webhooks.FeedURL != "" {
		feed = notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, webhooks, cfg.Webhooks.FeedURL)
		// Queued lines are still posted while shutting down.
		feed.Start(context.WithoutCancel(ctx))
		deps.Feed = feed
	}

	sched := scheduler.New()
	if err := relay.NewService(cfg.Tracking, deps).Register(sched, cfg.Scheduler); err != nil {
		return fmt.Errorf("register tasks: %w", err)
	}

	handler := api.NewHandler(api.Deps{
		Snapshots:     snapshots,
		Reminders:     matcher,
		Statistics:    recorder,
		Subscriptions: appStore,
		Scheduler:     sched,
		WebPush:       pushOptions,
		Tracking:      cfg.Tracking,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handler, cfg.Server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	log.Info().
		Str("tracking", fmt.Sprintf("%s:%d", cfg.Tracking.Host, cfg.Tracking.Port)).
		Dur("status_interval", cfg.Scheduler.StatusInterval).
		Msg("relay started")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, stopping services")
	case err := <-serveErr:
		runErr = fmt.Errorf("HTTP server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}

	sched.Stop()
	if feed != nil {
		feed.Stop()
	}

	log.Info().Msg("relay stopped")
	return runErr
}
