package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"archean-status-relay/config"
	"archean-status-relay/internal/directory"
	"archean-status-relay/internal/model"
	"archean-status-relay/internal/notification"
	"archean-status-relay/internal/parse"
	"archean-status-relay/internal/scheduler"
	"archean-status-relay/internal/snapshot"
	"archean-status-relay/internal/stats"
	"archean-status-relay/internal/store"
	"archean-status-relay/internal/waitlist"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router    *gin.Engine
	snapshots *snapshot.Store
	store     store.Store
	recorder  *stats.Recorder
}

func newTestAPI(t *testing.T, tracking config.TrackingConfig, push *webpush.Options) *testAPI {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Reminder{}, &model.StatisticRecord{}, &model.PushSubscription{}))

	s := store.NewGormStore(db)
	t.Cleanup(func() { s.Close() })

	sched := scheduler.New()
	require.NoError(t, sched.Register("status-poll", time.Minute, func(context.Context) error { return nil }))

	a := &testAPI{snapshots: snapshot.NewStore(), store: s, recorder: stats.NewRecorder(s)}
	handler := NewHandler(Deps{
		Snapshots:     a.snapshots,
		Reminders:     waitlist.NewMatcher(s, notification.Combine(nil, nil)),
		Statistics:    a.recorder,
		Subscriptions: s,
		Scheduler:     sched,
		WebPush:       push,
		Tracking:      tracking,
	})
	a.router = NewRouter(handler, config.ServerConfig{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTL:        time.Minute,
	})
	return a
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) online(players, max int) {
	a.snapshots.Replace(&directory.ServerSnapshot{
		ID:         1,
		Name:       "X",
		Address:    parse.Address{Host: "1.2.3.4", Port: 100},
		Branch:     "main",
		Gamemode:   directory.GamemodeAdventure,
		Players:    players,
		MaxPlayers: max,
		Password:   directory.Protected,
		Version:    "1.0",
	}, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
}

func TestStatusAndOnline(t *testing.T) {
	a := newTestAPI(t, config.TrackingConfig{Domain: "play.example.org"}, nil)

	w := a.do(http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"known":false,"online":false}`, w.Body.String())

	w = a.do(http.MethodGet, "/api/online", "")
	assert.JSONEq(t, `{"online":false}`, w.Body.String())

	a.online(5, 10)
	w = a.do(http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"known": true,
		"online": true,
		"observed_at": "2024-06-01T12:00:00Z",
		"server": {
			"id": 1, "name": "X", "address": "play.example.org:100", "branch": "main",
			"gamemode": "Adventure", "players": 5, "max_players": 10,
			"password_protected": true, "version": "1.0"
		}
	}`, w.Body.String())

	w = a.do(http.MethodGet, "/api/online", "")
	assert.JSONEq(t, `{"online":true}`, w.Body.String())

	a.snapshots.Replace(nil, time.Date(2024, 6, 1, 12, 1, 0, 0, time.UTC))
	w = a.do(http.MethodGet, "/api/status", "")
	assert.JSONEq(t, `{"known":true,"online":false,"observed_at":"2024-06-01T12:01:00Z"}`, w.Body.String())
}

func TestStatus_HiddenAddress(t *testing.T) {
	a := newTestAPI(t, config.TrackingConfig{HideAddress: true}, nil)
	a.online(1, 10)

	var resp statusResponse
	w := a.do(http.MethodGet, "/api/status", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Server)
	assert.Empty(t, resp.Server.Address)
}

func TestReminders(t *testing.T) {
	a := newTestAPI(t, config.TrackingConfig{}, nil)

	testCases := []struct {
		name   string
		setup  func()
		method string
		path   string
		body   string
		want   int
	}{
		{name: "offline server", method: http.MethodPut, path: "/api/reminders",
			body: `{"requester_id":"42","player_count":7}`, want: http.StatusServiceUnavailable},
		{name: "accepted", setup: func() { a.online(5, 10) }, method: http.MethodPut, path: "/api/reminders",
			body: `{"requester_id":"42","player_count":7}`, want: http.StatusCreated},
		{name: "duplicate", method: http.MethodPut, path: "/api/reminders",
			body: `{"requester_id":"42","player_count":7}`, want: http.StatusConflict},
		{name: "above max", method: http.MethodPut, path: "/api/reminders",
			body: `{"requester_id":"42","player_count":11}`, want: http.StatusBadRequest},
		{name: "already at target", method: http.MethodPut, path: "/api/reminders",
			body: `{"requester_id":"42","player_count":5}`, want: http.StatusConflict},
		{name: "retarget", method: http.MethodPut, path: "/api/reminders",
			body: `{"requester_id":"42","player_count":8,"fallback_location":"general"}`, want: http.StatusOK},
		{name: "zero target", method: http.MethodPut, path: "/api/reminders",
			body: `{"requester_id":"42","player_count":0}`, want: http.StatusBadRequest},
		{name: "missing target", method: http.MethodPut, path: "/api/reminders",
			body: `{"requester_id":"42"}`, want: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPut, path: "/api/reminders",
			body: `{"player_count":"eight"}`, want: http.StatusBadRequest},
		{name: "lookup without id", method: http.MethodGet, path: "/api/reminders", want: http.StatusBadRequest},
		{name: "lookup", method: http.MethodGet, path: "/api/reminders?requester_id=42", want: http.StatusOK},
		{name: "cancel", method: http.MethodDelete, path: "/api/reminders",
			body: `{"requester_id":"42"}`, want: http.StatusOK},
		{name: "cancel again", method: http.MethodDelete, path: "/api/reminders",
			body: `{"requester_id":"42"}`, want: http.StatusNotFound},
		{name: "lookup after cancel", method: http.MethodGet, path: "/api/reminders?requester_id=42", want: http.StatusNotFound},
	}

	for _, tc := range testCases {
		if tc.setup != nil {
			tc.setup()
		}
		w := a.do(tc.method, tc.path, tc.body)
		assert.Equal(t, tc.want, w.Code, "%s: %s", tc.name, w.Body.String())
	}
}

func TestReminders_ResponseBody(t *testing.T) {
	a := newTestAPI(t, config.TrackingConfig{}, nil)
	a.online(2, 10)

	w := a.do(http.MethodPut, "/api/reminders", `{"requester_id":"42","player_count":4,"fallback_location":"general"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp reminderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp.RequesterID)
	assert.Equal(t, 4, resp.TargetPlayerCount)
	assert.Equal(t, "general", resp.FallbackLocation)

	w = a.do(http.MethodPut, "/api/reminders", `{"requester_id":"42","player_count":11}`)
	assert.Contains(t, w.Body.String(), "between 1 and 10")

	w = a.do(http.MethodPut, "/api/reminders", `{"requester_id":"42","player_count":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "between 1 and 10")

	w = a.do(http.MethodPut, "/api/reminders", `{"requester_id":"42"}`)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestStatistics(t *testing.T) {
	a := newTestAPI(t, config.TrackingConfig{}, nil)

	w := a.do(http.MethodGet, "/api/statistics/peak", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	ctx := context.Background()
	for _, n := range []int{3, 8, 5} {
		a.recorder.Record(ctx, &directory.ServerSnapshot{Players: n, MaxPlayers: 10, Version: "1.0"})
	}

	w = a.do(http.MethodGet, "/api/statistics/peak", "")
	require.Equal(t, http.StatusOK, w.Code)
	var peak statisticResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &peak))
	assert.Equal(t, 8, peak.PlayerCount)

	w = a.do(http.MethodGet, "/api/statistics/recent?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var recent []statisticResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recent))
	assert.Len(t, recent, 2)

	for _, bad := range []string{"0", "-1", "abc", "100000"} {
		w = a.do(http.MethodGet, "/api/statistics/recent?limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestSubscriptions(t *testing.T) {
	a := newTestAPI(t, config.TrackingConfig{}, &webpush.Options{VAPIDPublicKey: "BPubKey"})
	ctx := context.Background()

	w := a.do(http.MethodPut, "/api/subscriptions", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	w = a.do(http.MethodPut, "/api/subscriptions", `{"user_id":"42","endpoint":"https://push.example/abc","p256dh":"k","auth":"a"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	subs, err := a.store.SubscriptionsForUser(ctx, "42")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example/abc", subs[0].Endpoint)

	w = a.do(http.MethodDelete, "/api/subscriptions", `{"endpoint":"https://push.example/abc"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	subs, err = a.store.SubscriptionsForUser(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, subs)

	w = a.do(http.MethodGet, "/api/vapid_public_key", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"BPubKey"}`, w.Body.String())
}

func TestVAPIDKeyNotConfigured(t *testing.T) {
	a := newTestAPI(t, config.TrackingConfig{}, nil)
	w := a.do(http.MethodGet, "/api/vapid_public_key", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSchedulerStats(t *testing.T) {
	a := newTestAPI(t, config.TrackingConfig{}, nil)
	w := a.do(http.MethodGet, "/api/scheduler", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got []scheduler.TaskStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "status-poll", got[0].Name)
	assert.Zero(t, got[0].Runs)
}
