package api

import (
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"archean-status-relay/config"
	"archean-status-relay/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/status", handler.GetStatus)
		api.GET("/online", handler.GetOnline)

		api.GET("/statistics/peak", caching, handler.GetPeak)
		api.GET("/statistics/recent", handler.GetRecent)

		api.GET("/reminders", handler.GetReminder)
		api.PUT("/reminders", handler.PutReminder)
		api.DELETE("/reminders", handler.DeleteReminder)

		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		api.GET("/scheduler", handler.GetSchedulerStats)
	}

	return r
}
