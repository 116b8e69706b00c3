package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"archean-status-relay/config"
	"archean-status-relay/internal/api"
	"archean-status-relay/internal/directory"
	"archean-status-relay/internal/kv"
	"archean-status-relay/internal/model"
	"archean-status-relay/internal/notification"
	"archean-status-relay/internal/relay"
	"archean-status-relay/internal/scheduler"
	"archean-status-relay/internal/snapshot"
	"archean-status-relay/internal/stats"
	"archean-status-relay/internal/statusboard"
	"archean-status-relay/internal/store"
	"archean-status-relay/internal/waitlist"
)

// chat records every webhook call by path.
type chat struct {
	mu    sync.Mutex
	posts map[string][]string
	edits int
}

func (c *chat) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		c.mu.Lock()
		defer c.mu.Unlock()
		if r.Method == http.MethodPatch {
			c.edits++
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"id":"900"}`)
			return
		}
		c.posts[r.URL.Path] = append(c.posts[r.URL.Path], body.Content)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"id":"900"}`)
	}
}

func (c *chat) get(path string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.posts[path]...)
}

// TestReminderLifecycle runs a reminder from the API through two polls of the
// directory and checks it is delivered exactly once.
func TestReminderLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	// --- Storage ---
	testDB, err := gorm.Open(sqlite.Open("file:lifecycle?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, testDB.AutoMigrate(&model.Reminder{}, &model.StatisticRecord{}, &model.PushSubscription{}))
	appStore := store.NewGormStore(testDB)
	defer appStore.Close()

	doc, err := kv.Open(filepath.Join(t.TempDir(), "relay.json"))
	require.NoError(t, err)

	// --- Upstream directory and chat ---
	var mu sync.Mutex
	players := 5
	dir := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, `{"servers":[{"id":1,"host":"1.2.3.4","port":100,"nb_players":%d,"max_players":10,"mode":2,"pswd":0,"version":"1.0","name":"X","branch":"main"}]}`, players)
	}))
	defer dir.Close()
	setPlayers := func(n int) {
		mu.Lock()
		defer mu.Unlock()
		players = n
	}

	c := &chat{posts: map[string][]string{}}
	chatServer := httptest.NewServer(c.handler(t))
	defer chatServer.Close()

	// --- Wiring ---
	webhooks := notification.NewWebhookClient(chatServer.Client())
	feed := notification.NewWorkerPool(1, 16, webhooks, chatServer.URL+"/feed")
	feed.Start(ctx)

	snapshots := snapshot.NewStore()
	matcher := waitlist.NewMatcher(appStore, notification.Combine(nil,
		notification.NewWebhookSink(webhooks, map[string]string{"general": chatServer.URL + "/general"})))
	recorder := stats.NewRecorder(appStore)
	board := statusboard.New(notification.NewWebhookPublisher(webhooks, chatServer.URL+"/status"), doc, statusboard.Options{})

	tracking := config.TrackingConfig{Host: "1.2.3.4", Port: 100}
	svc := relay.NewService(tracking, relay.Deps{
		Fetcher:   directory.NewClient(config.DirectoryConfig{BaseURL: dir.URL, Timeout: 2 * time.Second}),
		Snapshots: snapshots,
		Feed:      feed,
		Board:     board,
		Waitlist:  matcher,
		Recorder:  recorder,
	})

	router := api.NewRouter(api.NewHandler(api.Deps{
		Snapshots:     snapshots,
		Reminders:     matcher,
		Statistics:    recorder,
		Subscriptions: appStore,
		Scheduler:     scheduler.New(),
		Tracking:      tracking,
	}), config.ServerConfig{RateLimitPerSec: 100, RateLimitBurst: 100, CacheTTL: time.Second})
	call := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	// --- Step 1: baseline poll at 5 players ---
	require.NoError(t, svc.PollOnce(ctx))
	assert.Equal(t, "900", board.MessageID())
	stored, err := doc.Get(kv.StatusMessageID)
	require.NoError(t, err)
	assert.Equal(t, "900", stored)

	// --- Step 2: wait for 7 players ---
	w := call(http.MethodPut, "/api/reminders", `{"requester_id":"42","player_count":7,"fallback_location":"general"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// --- Step 3: the server reaches 7 ---
	setPlayers(7)
	require.NoError(t, svc.PollOnce(ctx))
	require.NoError(t, svc.PollOnce(ctx))

	delivered := c.get("/general")
	require.Len(t, delivered, 1, "a reminder fires at most once")
	assert.True(t, strings.HasPrefix(delivered[0], "<@42> "))
	assert.Contains(t, delivered[0], "player count of 7")

	w = call(http.MethodGet, "/api/reminders?requester_id=42", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// --- Step 4: statistics use the last snapshot ---
	require.NoError(t, svc.RecordOnce(ctx))
	w = call(http.MethodGet, "/api/statistics/peak", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"player_count":7`)

	// --- Step 5: the feed drains on stop ---
	feed.Stop()
	assert.Equal(t, []string{
		"The server is online. 5/10 players online.",
		"A player joined the server. 6/10 players online.",
		"A player joined the server. 7/10 players online.",
	}, c.get("/feed"))

	c.mu.Lock()
	assert.Equal(t, 2, c.edits, "later polls edit the status message in place")
	c.mu.Unlock()
}
