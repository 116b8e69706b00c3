package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"

	"archean-status-relay/config"
	"archean-status-relay/internal/model"
	"archean-status-relay/internal/scheduler"
	"archean-status-relay/internal/snapshot"
	"archean-status-relay/internal/store"
	"archean-status-relay/internal/waitlist"
)

// Reminders is the waiting list as seen by the API.
type Reminders interface {
	RequestReminder(ctx context.Context, requesterID string, target int, fallback string, server *waitlist.ServerView) (model.Reminder, bool, error)
	CancelReminder(ctx context.Context, requesterID string) (model.Reminder, error)
	Lookup(ctx context.Context, requesterID string) (model.Reminder, error)
}

// Statistics answers population history queries.
type Statistics interface {
	Peak(ctx context.Context) (*model.StatisticRecord, error)
	Latest(ctx context.Context, n int) ([]model.StatisticRecord, error)
}

// TaskStats reports the scheduler's per-task counters.
type TaskStats interface {
	Stats() []scheduler.TaskStats
}

// Deps are the collaborators behind the API.
type Deps struct {
	Snapshots     *snapshot.Store
	Reminders     Reminders
	Statistics    Statistics
	Subscriptions store.SubscriptionStore
	Scheduler     TaskStats
	WebPush       *webpush.Options
	Tracking      config.TrackingConfig
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	snapshots     *snapshot.Store
	reminders     Reminders
	statistics    Statistics
	subscriptions store.SubscriptionStore
	scheduler     TaskStats
	webpush       *webpush.Options
	tracking      config.TrackingConfig
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		snapshots:     d.Snapshots,
		reminders:     d.Reminders,
		statistics:    d.Statistics,
		subscriptions: d.Subscriptions,
		scheduler:     d.Scheduler,
		webpush:       d.WebPush,
		tracking:      d.Tracking,
	}
}
