package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetSchedulerStats lists run, skip and failure counters of every periodic task.
func (h *Handler) GetSchedulerStats(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusOK, []struct{}{})
		return
	}
	c.JSON(http.StatusOK, h.scheduler.Stats())
}
