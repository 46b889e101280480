package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"carpark-vacancy-backend/internal/dashboard"
)

const defaultSeriesHours = 24

// GetDashboard handles the GET /api/dashboard request. The view is rebuilt
// from the snapshot log on every call; the ?hours parameter bounds the
// per-carpark time series window.
func (h *Handler) GetDashboard(c *gin.Context) {
	hours := defaultSeriesHours
	if raw := c.Query("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive integer"})
			return
		}
		hours = n
	}

	ctx := c.Request.Context()
	snaps, err := h.store.AllSnapshots(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve snapshots"})
		return
	}
	carparks, err := h.store.Carparks(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve carparks"})
		return
	}

	seriesFrom := time.Now().In(h.loc).Add(-time.Duration(hours) * time.Hour)
	c.JSON(http.StatusOK, dashboard.Build(snaps, carparks, seriesFrom))
}
