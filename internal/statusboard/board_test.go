package statusboard

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archean-status-relay/internal/directory"
	"archean-status-relay/internal/kv"
	"archean-status-relay/internal/notification"
	"archean-status-relay/internal/parse"
	"archean-status-relay/internal/snapshot"
)

type fakePublisher struct {
	nextID   string
	messages map[string]string
	creates  int
	edits    int
	editErr  error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{nextID: "100", messages: map[string]string{}}
}

func (p *fakePublisher) Create(ctx context.Context, content string) (string, error) {
	p.creates++
	id := p.nextID
	p.messages[id] = content
	return id, nil
}

func (p *fakePublisher) Edit(ctx context.Context, id, content string) error {
	p.edits++
	if p.editErr != nil {
		return p.editErr
	}
	if _, ok := p.messages[id]; !ok {
		return notification.ErrMessageNotFound
	}
	p.messages[id] = content
	return nil
}

func onlineState() *snapshot.State {
	return &snapshot.State{
		ObservedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Snapshot: &directory.ServerSnapshot{
			ID:         1,
			Name:       "X",
			Address:    parse.Address{Host: "1.2.3.4", Port: 100},
			Branch:     "main",
			Gamemode:   directory.GamemodeSurvival,
			Players:    5,
			MaxPlayers: 10,
			Password:   directory.Unprotected,
			Version:    "1.0",
		},
	}
}

func openKV(t *testing.T) *kv.Doc {
	doc, err := kv.Open(filepath.Join(t.TempDir(), "relay.json"))
	require.NoError(t, err)
	return doc
}

func TestBoard_CreatesThenEdits(t *testing.T) {
	ctx := context.Background()
	pub := newFakePublisher()
	doc := openKV(t)
	b := New(pub, doc, Options{})

	require.NoError(t, b.Refresh(ctx, onlineState()))
	assert.Equal(t, 1, pub.creates)
	assert.Equal(t, "100", b.MessageID())

	stored, err := doc.Get(kv.StatusMessageID)
	require.NoError(t, err)
	assert.Equal(t, "100", stored)

	require.NoError(t, b.Refresh(ctx, &snapshot.State{ObservedAt: time.Now()}))
	assert.Equal(t, 1, pub.creates)
	assert.Equal(t, 1, pub.edits)
	assert.Contains(t, pub.messages["100"], "Status: Offline")
}

func TestBoard_ReusesStoredMessage(t *testing.T) {
	pub := newFakePublisher()
	pub.messages["55"] = "old"
	doc := openKV(t)
	require.NoError(t, doc.Set(kv.StatusMessageID, "55"))

	b := New(pub, doc, Options{})
	require.NoError(t, b.Refresh(context.Background(), onlineState()))
	assert.Zero(t, pub.creates)
	assert.Contains(t, pub.messages["55"], "Players: 5/10")
}

func TestBoard_RecreatesDeletedMessage(t *testing.T) {
	pub := newFakePublisher()
	pub.nextID = "77"
	doc := openKV(t)
	require.NoError(t, doc.Set(kv.StatusMessageID, "55"))

	b := New(pub, doc, Options{})
	require.NoError(t, b.Refresh(context.Background(), onlineState()))
	assert.Equal(t, 1, pub.edits)
	assert.Equal(t, 1, pub.creates)
	assert.Equal(t, "77", b.MessageID())

	stored, err := doc.Get(kv.StatusMessageID)
	require.NoError(t, err)
	assert.Equal(t, "77", stored)
}

func TestBoard_EditFailureIsReported(t *testing.T) {
	pub := newFakePublisher()
	pub.messages["55"] = "old"
	pub.editErr = notification.ErrDeliveryFailed
	doc := openKV(t)
	require.NoError(t, doc.Set(kv.StatusMessageID, "55"))

	b := New(pub, doc, Options{})
	err := b.Refresh(context.Background(), onlineState())
	assert.True(t, errors.Is(err, notification.ErrDeliveryFailed))
	assert.Zero(t, pub.creates, "a transient failure must not orphan the message")
	assert.Equal(t, "55", b.MessageID())
}

func TestRender(t *testing.T) {
	now := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)

	out := Render(onlineState(), Options{}, now)
	assert.Equal(t, "Status: Online\n"+
		"Name: X\n"+
		"Address: 1.2.3.4:100\n"+
		"Gamemode: Survival\n"+
		"Password: Unprotected\n"+
		"Players: 5/10\n"+
		"Version: 1.0\n"+
		"Branch: main\n"+
		"Last updated: 2024-06-01T12:00:00Z", out)

	out = Render(onlineState(), Options{Domain: "play.example.org"}, now)
	assert.Contains(t, out, "Address: play.example.org:100")

	out = Render(onlineState(), Options{HideAddress: true}, now)
	assert.NotContains(t, out, "Address:")

	assert.Equal(t, "Status: Unknown\nLast updated: 2024-06-01T13:00:00Z", Render(nil, Options{}, now))
	assert.Contains(t, Render(&snapshot.State{ObservedAt: now}, Options{}, now), "Status: Offline")
}
