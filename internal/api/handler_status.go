package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"archean-status-relay/internal/directory"
)

type serverResponse struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Address           string `json:"address,omitempty"`
	Branch            string `json:"branch"`
	Gamemode          string `json:"gamemode"`
	Players           int    `json:"players"`
	MaxPlayers        int    `json:"max_players"`
	PasswordProtected bool   `json:"password_protected"`
	Version           string `json:"version"`
}

type statusResponse struct {
	Known      bool            `json:"known"`
	Online     bool            `json:"online"`
	ObservedAt *time.Time      `json:"observed_at,omitempty"`
	Server     *serverResponse `json:"server,omitempty"`
}

func (h *Handler) toServerResponse(s *directory.ServerSnapshot) *serverResponse {
	resp := &serverResponse{
		ID:                s.ID,
		Name:              s.Name,
		Branch:            s.Branch,
		Gamemode:          s.Gamemode.String(),
		Players:           s.Players,
		MaxPlayers:        s.MaxPlayers,
		PasswordProtected: s.Password == directory.Protected,
		Version:           s.Version,
	}
	if !h.tracking.HideAddress {
		resp.Address = s.Address.WithHost(h.tracking.Domain).String()
	}
	return resp
}

// GetStatus handles GET /api/status with the last observed state of the tracked server.
func (h *Handler) GetStatus(c *gin.Context) {
	state := h.snapshots.Get()
	if state == nil {
		c.JSON(http.StatusOK, statusResponse{})
		return
	}

	observed := state.ObservedAt
	resp := statusResponse{Known: true, Online: state.Online(), ObservedAt: &observed}
	if state.Online() {
		resp.Server = h.toServerResponse(state.Snapshot)
	}
	c.JSON(http.StatusOK, resp)
}

// GetOnline handles GET /api/online.
func (h *Handler) GetOnline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.snapshots.Get().Online()})
}
