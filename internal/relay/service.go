// Package relay wires the periodic status poll and statistics sampling of the tracked server.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"archean-status-relay/config"
	"archean-status-relay/internal/directory"
	"archean-status-relay/internal/scheduler"
	"archean-status-relay/internal/snapshot"
	"archean-status-relay/internal/transition"
)

// Task names as registered with the scheduler.
const (
	TaskStatusPoll = "status-poll"
	TaskStatistics = "statistics"
)

// Fetcher looks the tracked server up in the directory.
type Fetcher interface {
	FindByAddress(ctx context.Context, host string, port int) (*directory.ServerSnapshot, error)
}

// Feed receives one line per transition event.
type Feed interface {
	Dispatch(line string) bool
}

// Board displays the live state.
type Board interface {
	Refresh(ctx context.Context, state *snapshot.State) error
}

// Waitlist fires reminders for a player count.
type Waitlist interface {
	OnTick(ctx context.Context, players int) (int, error)
}

// Recorder samples the population.
type Recorder interface {
	Record(ctx context.Context, snap *directory.ServerSnapshot)
}

// Deps are the collaborators of a Service. Feed and Board are optional.
type Deps struct {
	Fetcher   Fetcher
	Snapshots *snapshot.Store
	Feed      Feed
	Board     Board
	Waitlist  Waitlist
	Recorder  Recorder
}

// Service runs the relay pipeline for one tracked server.
type Service struct {
	tracking config.TrackingConfig
	deps     Deps
	now      func() time.Time
}

// NewService creates a relay for the server at tracking.Host:tracking.Port.
func NewService(tracking config.TrackingConfig, deps Deps) *Service {
	return &Service{tracking: tracking, deps: deps, now: time.Now}
}

// Register adds the status poll and statistics tasks to sched.
func (s *Service) Register(sched *scheduler.Scheduler, cfg config.SchedulerConfig) error {
	if err := sched.Register(TaskStatusPoll, cfg.StatusInterval, s.PollOnce); err != nil {
		return err
	}
	return sched.Register(TaskStatistics, cfg.StatisticsInterval, s.RecordOnce)
}

// PollOnce fetches the tracked server, publishes the new state and relays the
// transitions from the previous one. A failed fetch leaves the previous state
// in place and emits nothing.
func (s *Service) PollOnce(ctx context.Context) error {
	snap, err := s.deps.Fetcher.FindByAddress(ctx, s.tracking.Host, s.tracking.Port)
	if err != nil {
		return fmt.Errorf("poll %s:%d: %w", s.tracking.Host, s.tracking.Port, err)
	}

	prev, cur := s.deps.Snapshots.Replace(snap, s.now().UTC())
	var prevSnap *directory.ServerSnapshot
	if prev != nil {
		prevSnap = prev.Snapshot
	}

	events := transition.Diff(prevSnap, cur.Snapshot)
	if len(events) > 0 {
		log.Debug().Int("events", len(events)).Bool("baseline", prev == nil).Msg("server state changed")
	}
	if s.deps.Feed != nil {
		for _, ev := range events {
			s.deps.Feed.Dispatch(FeedLine(ev))
		}
	}

	if s.deps.Board != nil {
		if err := s.deps.Board.Refresh(ctx, cur); err != nil {
			log.Error().Err(err).Msg("failed to update status message")
		}
	}

	if !cur.Online() {
		return nil
	}
	fired, err := s.deps.Waitlist.OnTick(ctx, cur.Snapshot.Players)
	if err != nil {
		return fmt.Errorf("match reminders: %w", err)
	}
	if fired > 0 {
		log.Info().Int("fired", fired).Int("players", cur.Snapshot.Players).Msg("reminders fired")
	}
	return nil
}

// RecordOnce samples the last observed state. It never fetches and is a no-op
// while the server is offline or not yet observed.
func (s *Service) RecordOnce(ctx context.Context) error {
	state := s.deps.Snapshots.Get()
	if !state.Online() {
		log.Debug().Msg("server not online, skipping statistics sample")
		return nil
	}
	s.deps.Recorder.Record(ctx, state.Snapshot)
	return nil
}

// FeedLine renders an event as one activity feed message.
func FeedLine(ev transition.Event) string {
	switch ev.Kind {
	case transition.WentOnline:
		return fmt.Sprintf("The server is online. %d/%d players online.", ev.Total, ev.Max)
	case transition.WentOffline:
		return "The server is offline."
	case transition.PlayerJoined:
		return fmt.Sprintf("A player joined the server. %d/%d players online.", ev.Total, ev.Max)
	case transition.PlayerLeft:
		return fmt.Sprintf("A player left the server. %d/%d players online.", ev.Total, ev.Max)
	}
	return ev.Kind.String()
}
