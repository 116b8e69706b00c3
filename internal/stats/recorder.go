// Package stats keeps the append-only population log of the tracked server.
package stats

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"archean-status-relay/internal/directory"
	"archean-status-relay/internal/model"
	"archean-status-relay/internal/store"
)

// Recorder is the only writer of the statistics table.
type Recorder struct {
	store store.StatisticStore
	now   func() time.Time
}

// NewRecorder creates a recorder over s.
func NewRecorder(s store.StatisticStore) *Recorder {
	return &Recorder{store: s, now: time.Now}
}

// Record appends one sample derived from snap. Failures are logged and dropped.
func (r *Recorder) Record(ctx context.Context, snap *directory.ServerSnapshot) {
	if snap == nil {
		return
	}
	rec := &model.StatisticRecord{
		Time:        r.now().UTC(),
		PlayerCount: snap.Players,
		MaxPlayers:  snap.MaxPlayers,
		Version:     snap.Version,
	}
	if err := r.store.AppendStatistic(ctx, rec); err != nil {
		log.Error().Err(err).Int("players", snap.Players).Msg("failed to record statistics")
		return
	}
	log.Debug().Int("players", rec.PlayerCount).Int("max", rec.MaxPlayers).Msg("statistics recorded")
}

// Peak returns the sample with the most players, the earliest one on ties,
// or nil when nothing was recorded yet.
func (r *Recorder) Peak(ctx context.Context) (*model.StatisticRecord, error) {
	return r.store.PeakStatistic(ctx)
}

// Latest returns up to n samples, newest first.
func (r *Recorder) Latest(ctx context.Context, n int) ([]model.StatisticRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	return r.store.RecentStatistics(ctx, n)
}
