// Package waitlist keeps one-shot "tell me when the server reaches N players"
// reminders and fires them when the tracked server hits the count.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"archean-status-relay/internal/model"
	"archean-status-relay/internal/notification"
	"archean-status-relay/internal/store"
)

var (
	ErrInvalidTarget   = errors.New("target player count is out of range")
	ErrAlreadyAtTarget = errors.New("server is already at the target player count")
	ErrDuplicateTarget = errors.New("already waiting for this player count")
	ErrNotWaiting      = errors.New("not waiting")
	ErrServerOffline   = errors.New("server is offline")
)

// ServerView is the part of the live server state a reminder request is validated against.
type ServerView struct {
	Players    int
	MaxPlayers int
}

// Matcher is the only writer of the reminder table.
type Matcher struct {
	store store.ReminderStore
	sink  notification.Sink
	locks *keyedMutex
}

// NewMatcher creates a matcher over the given store that delivers through sink.
func NewMatcher(s store.ReminderStore, sink notification.Sink) *Matcher {
	return &Matcher{store: s, sink: sink, locks: newKeyedMutex()}
}

// RequestReminder registers or retargets the requester's reminder. server is the
// current state of the tracked server and nil while it is offline. created reports
// whether a new reminder was made rather than an existing one updated.
func (m *Matcher) RequestReminder(ctx context.Context, requesterID string, target int, fallback string, server *ServerView) (model.Reminder, bool, error) {
	if server == nil {
		return model.Reminder{}, false, ErrServerOffline
	}
	if target <= 0 || target > server.MaxPlayers {
		return model.Reminder{}, false, fmt.Errorf("%w: keep it between 1 and %d", ErrInvalidTarget, server.MaxPlayers)
	}
	if target == server.Players {
		return model.Reminder{}, false, ErrAlreadyAtTarget
	}

	unlock := m.locks.Lock(requesterID)
	defer unlock()

	existing, err := m.store.FindReminder(ctx, requesterID)
	created := errors.Is(err, store.ErrNotFound)
	if err != nil && !created {
		return model.Reminder{}, false, err
	}
	if !created && existing.TargetPlayerCount == target {
		return model.Reminder{}, false, ErrDuplicateTarget
	}

	r, err := m.store.UpsertReminder(ctx, model.Reminder{
		RequesterID:       requesterID,
		TargetPlayerCount: target,
		FallbackLocation:  fallback,
	})
	if err != nil {
		return model.Reminder{}, false, err
	}

	log.Info().
		Str("requester", requesterID).
		Int("target", target).
		Bool("created", created).
		Msg("reminder registered")
	return r, created, nil
}

// CancelReminder deletes the requester's reminder and returns it.
func (m *Matcher) CancelReminder(ctx context.Context, requesterID string) (model.Reminder, error) {
	unlock := m.locks.Lock(requesterID)
	defer unlock()

	r, err := m.store.DeleteReminder(ctx, requesterID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Reminder{}, ErrNotWaiting
	}
	if err != nil {
		return model.Reminder{}, err
	}
	log.Info().Str("requester", requesterID).Int("target", r.TargetPlayerCount).Msg("reminder cancelled")
	return r, nil
}

// Lookup returns the requester's outstanding reminder.
func (m *Matcher) Lookup(ctx context.Context, requesterID string) (model.Reminder, error) {
	r, err := m.store.FindReminder(ctx, requesterID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Reminder{}, ErrNotWaiting
	}
	return r, err
}

// OnTick fires every reminder waiting for exactly players. A reminder is removed
// before it is delivered, so each one fires at most once even when delivery
// fails. Reminders retargeted since they were selected are left alone.
// It returns the number of reminders fired.
func (m *Matcher) OnTick(ctx context.Context, players int) (int, error) {
	matched, err := m.store.RemindersForCount(ctx, players)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, r := range matched {
		if ctx.Err() != nil {
			return fired, ctx.Err()
		}
		if !m.claim(ctx, r, players) {
			continue
		}
		fired++
		m.deliver(ctx, r, players)
	}
	return fired, nil
}

func (m *Matcher) claim(ctx context.Context, r model.Reminder, players int) bool {
	unlock := m.locks.Lock(r.RequesterID)
	defer unlock()

	deleted, err := m.store.DeleteReminderIfTarget(ctx, r.ID, players)
	if err != nil {
		log.Error().Err(err).Str("requester", r.RequesterID).Msg("failed to remove matched reminder, skipping")
		return false
	}
	if !deleted {
		log.Debug().Str("requester", r.RequesterID).Msg("reminder changed before it fired")
	}
	return deleted
}

func (m *Matcher) deliver(ctx context.Context, r model.Reminder, players int) {
	msg := notification.Message{
		Title: "Player count reached",
		Body: fmt.Sprintf("The server has reached a player count of %d. Feel free to join!\nYou asked to be notified %s.",
			players, r.CreatedAt.UTC().Format(time.RFC1123)),
	}

	err := m.sink.NotifyDirect(ctx, r.RequesterID, msg)
	if err == nil {
		log.Info().Str("requester", r.RequesterID).Int("players", players).Msg("reminder delivered")
		return
	}
	log.Warn().Err(err).Str("requester", r.RequesterID).Msg("direct delivery failed")

	if r.FallbackLocation == "" {
		return
	}
	if err := m.sink.NotifyFallback(ctx, r.FallbackLocation, r.RequesterID, msg); err != nil {
		log.Warn().Err(err).Str("requester", r.RequesterID).Str("location", r.FallbackLocation).Msg("fallback delivery failed, giving up")
		return
	}
	log.Info().Str("requester", r.RequesterID).Str("location", r.FallbackLocation).Msg("reminder delivered to fallback location")
}

// keyedMutex serializes work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
