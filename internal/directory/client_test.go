package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archean-status-relay/config"
	"archean-status-relay/internal/parse"
)

const singleServerBody = `{"servers":[{"id":1,"host":"1.2.3.4","port":100,"nb_players":5,"max_players":10,"mode":0,"pswd":0,"version":"1.0","name":"X","branch":"main"}]}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.DirectoryConfig{BaseURL: server.URL, Timeout: time.Second})
}

func respondWith(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestClient_FetchAll(t *testing.T) {
	var requestedPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		respondWith(http.StatusOK, singleServerBody)(w, r)
	})

	servers, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/servers", requestedPath)
	require.Len(t, servers, 1)
	assert.Equal(t, ServerSnapshot{
		ID:         1,
		Name:       "X",
		Address:    parse.Address{Host: "1.2.3.4", Port: 100},
		Branch:     "main",
		Gamemode:   GamemodeCreative,
		Players:    5,
		MaxPlayers: 10,
		Password:   Unprotected,
		Version:    "1.0",
	}, servers[0])
}

func TestClient_FetchAllErrors(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		body     string
		expected error
	}{
		{name: "Server error", status: http.StatusInternalServerError, body: `oops`, expected: ErrRequestFailure},
		{name: "Not found", status: http.StatusNotFound, body: ``, expected: ErrRequestFailure},
		{name: "Not JSON", status: http.StatusOK, body: `<html>`, expected: ErrInvalidSchema},
		{name: "Missing servers key", status: http.StatusOK, body: `{"data":[]}`, expected: ErrInvalidSchema},
		{name: "Missing required field", status: http.StatusOK, body: `{"servers":[{"id":1,"host":"1.2.3.4","port":100}]}`, expected: ErrInvalidSchema},
		{name: "Unknown mode", status: http.StatusOK, body: `{"servers":[{"id":1,"host":"h","port":1,"nb_players":0,"max_players":1,"mode":7,"pswd":0,"version":"1","name":"n"}]}`, expected: ErrInvalidSchema},
		{name: "Players above max", status: http.StatusOK, body: `{"servers":[{"id":1,"host":"h","port":1,"nb_players":3,"max_players":1,"mode":0,"pswd":0,"version":"1","name":"n"}]}`, expected: ErrInvalidSchema},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, respondWith(tc.status, tc.body))
			servers, err := client.FetchAll(context.Background())
			assert.Nil(t, servers)
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestClient_FetchAllNumericVersion(t *testing.T) {
	client := newTestClient(t, respondWith(http.StatusOK,
		`{"servers":[{"id":2,"host":"h","port":1,"nb_players":0,"max_players":4,"mode":2,"pswd":1,"version":12,"name":"n"}]}`))

	servers, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "12", servers[0].Version)
	assert.Equal(t, GamemodeSurvival, servers[0].Gamemode)
	assert.Equal(t, Protected, servers[0].Password)
}

func TestClient_FetchAllTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client := NewClient(config.DirectoryConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.FetchAll(context.Background())
	assert.ErrorIs(t, err, ErrRequestFailure)
}

func TestClient_FindByAddress(t *testing.T) {
	client := newTestClient(t, respondWith(http.StatusOK, singleServerBody))

	found, err := client.FindByAddress(context.Background(), "1.2.3.4", 100)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(1), found.ID)

	missing, err := client.FindByAddress(context.Background(), "1.2.3.4", 101)
	assert.NoError(t, err, "an unlisted server is not an error")
	assert.Nil(t, missing)

	byID, err := client.FindByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "X", byID.Name)
}

func TestFilters(t *testing.T) {
	servers := []ServerSnapshot{
		{ID: 1, Gamemode: GamemodeCreative, Password: Protected},
		{ID: 2, Gamemode: GamemodeSurvival, Password: Unprotected},
		{ID: 3, Gamemode: GamemodeSurvival, Password: Protected},
	}

	survival := FilterByGamemode(servers, GamemodeSurvival)
	assert.Len(t, survival, 2)

	open := FilterByPassword(servers, Unprotected)
	require.Len(t, open, 1)
	assert.Equal(t, int64(2), open[0].ID)
}
