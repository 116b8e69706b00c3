// Package statusboard keeps one chat message in sync with the tracked server's state.
package statusboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"archean-status-relay/internal/kv"
	"archean-status-relay/internal/notification"
	"archean-status-relay/internal/snapshot"
)

// MessagePublisher creates and edits a single message.
type MessagePublisher interface {
	Create(ctx context.Context, content string) (string, error)
	Edit(ctx context.Context, id, content string) error
}

// KV persists the handle of the published message.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Options control what the status message reveals.
type Options struct {
	HideAddress bool
	// Domain replaces the host in the displayed address.
	Domain string
}

// Board owns the live status message.
type Board struct {
	pub  MessagePublisher
	kv   KV
	opts Options

	mu sync.Mutex
	id string
}

// New creates a board, reusing the message handle stored in kv if any.
func New(pub MessagePublisher, store KV, opts Options) *Board {
	b := &Board{pub: pub, kv: store, opts: opts}
	id, err := store.Get(kv.StatusMessageID)
	switch {
	case err == nil:
		b.id = id
	case !errors.Is(err, kv.ErrNotFound):
		log.Warn().Err(err).Msg("failed to read stored status message id")
	}
	return b
}

// MessageID returns the handle of the current status message, empty before the first publish.
func (b *Board) MessageID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

// Refresh renders state and publishes it, editing the existing message when
// there is one and creating a replacement when it was deleted.
func (b *Board) Refresh(ctx context.Context, state *snapshot.State) error {
	content := Render(state, b.opts, time.Now())

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.id != "" {
		err := b.pub.Edit(ctx, b.id, content)
		if err == nil {
			return nil
		}
		if !errors.Is(err, notification.ErrMessageNotFound) {
			return fmt.Errorf("edit status message: %w", err)
		}
		log.Info().Str("message_id", b.id).Msg("status message doesn't exist, sending a new one")
	}

	id, err := b.pub.Create(ctx, content)
	if err != nil {
		return fmt.Errorf("create status message: %w", err)
	}
	b.id = id
	if err := b.kv.Set(kv.StatusMessageID, id); err != nil {
		log.Error().Err(err).Str("message_id", id).Msg("failed to persist status message id")
	}
	return nil
}

// Render formats state as plain text. now is only used while no poll has succeeded.
func Render(state *snapshot.State, opts Options, now time.Time) string {
	var sb strings.Builder
	switch {
	case state == nil:
		sb.WriteString("Status: Unknown\n")
		fmt.Fprintf(&sb, "Last updated: %s", now.UTC().Format(time.RFC3339))
		return sb.String()
	case !state.Online():
		sb.WriteString("Status: Offline\n")
		fmt.Fprintf(&sb, "Last updated: %s", state.ObservedAt.UTC().Format(time.RFC3339))
		return sb.String()
	}

	s := state.Snapshot
	sb.WriteString("Status: Online\n")
	fmt.Fprintf(&sb, "Name: %s\n", s.Name)
	if !opts.HideAddress {
		fmt.Fprintf(&sb, "Address: %s\n", s.Address.WithHost(opts.Domain))
	}
	fmt.Fprintf(&sb, "Gamemode: %s\n", s.Gamemode)
	fmt.Fprintf(&sb, "Password: %s\n", s.Password)
	fmt.Fprintf(&sb, "Players: %d/%d\n", s.Players, s.MaxPlayers)
	fmt.Fprintf(&sb, "Version: %s\n", s.Version)
	if s.Branch != "" {
		fmt.Fprintf(&sb, "Branch: %s\n", s.Branch)
	}
	fmt.Fprintf(&sb, "Last updated: %s", state.ObservedAt.UTC().Format(time.RFC3339))
	return sb.String()
}
