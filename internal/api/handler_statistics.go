package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"archean-status-relay/internal/model"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 500
)

type statisticResponse struct {
	Time        time.Time `json:"time"`
	PlayerCount int       `json:"player_count"`
	MaxPlayers  int       `json:"max_players"`
	Version     string    `json:"version"`
}

func toStatisticResponse(r model.StatisticRecord) statisticResponse {
	return statisticResponse{
		Time:        r.Time,
		PlayerCount: r.PlayerCount,
		MaxPlayers:  r.MaxPlayers,
		Version:     r.Version,
	}
}

// GetPeak handles GET /api/statistics/peak.
func (h *Handler) GetPeak(c *gin.Context) {
	peak, err := h.statistics.Peak(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to query peak statistics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve statistics"})
		return
	}
	if peak == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no statistics recorded yet"})
		return
	}
	c.JSON(http.StatusOK, toStatisticResponse(*peak))
}

// GetRecent handles GET /api/statistics/recent?limit=n, newest first.
func (h *Handler) GetRecent(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRecentLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxRecentLimit)})
			return
		}
		limit = n
	}

	recs, err := h.statistics.Latest(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to query recent statistics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve statistics"})
		return
	}

	resp := make([]statisticResponse, 0, len(recs))
	for _, r := range recs {
		resp = append(resp, toStatisticResponse(r))
	}
	c.JSON(http.StatusOK, resp)
}
