package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"carpark-vacancy-backend/config"
	"carpark-vacancy-backend/internal/mw"
	"carpark-vacancy-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, webpushOptions *webpush.Options, cfg *config.ServerConfig, loc *time.Location) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, webpushOptions, loc)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/dashboard", caching, handler.GetDashboard)

		api.GET("/carparks", caching, handler.GetCarparks)
		api.GET("/carparks/nearby", caching, handler.GetNearbyCarparks)
		api.GET("/carparks/:carpark_id/aggregates", caching, handler.GetHourlyAggregates)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
