package api

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/golang/geo/s2"

	"carpark-vacancy-backend/internal/model"
)

// GetCarparks handles the GET /api/carparks request.
func (h *Handler) GetCarparks(c *gin.Context) {
	carparks, err := h.store.Carparks(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve carparks"})
		return
	}
	c.JSON(http.StatusOK, carparks)
}

const (
	earthRadiusKm   = 6371.01
	defaultRadiusKm = 2.0
)

// nearbyCarpark is one registry entry with its distance from the query point.
type nearbyCarpark struct {
	model.Carpark
	DistanceKm float64 `json:"distance_km"`
}

// GetNearbyCarparks handles GET /api/carparks/nearby?lat&lon&radius_km.
// Carparks without stored coordinates are excluded.
func (h *Handler) GetNearbyCarparks(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "lat and lon are required"})
		return
	}

	radiusKm := defaultRadiusKm
	if raw := c.Query("radius_km"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "radius_km must be a positive number"})
			return
		}
		radiusKm = r
	}

	carparks, err := h.store.Carparks(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve carparks"})
		return
	}

	from := s2.LatLngFromDegrees(lat, lon)
	nearby := make([]nearbyCarpark, 0)
	for _, cp := range carparks {
		if cp.Latitude == nil || cp.Longitude == nil {
			continue
		}
		to := s2.LatLngFromDegrees(*cp.Latitude, *cp.Longitude)
		distanceKm := from.Distance(to).Radians() * earthRadiusKm
		if distanceKm <= radiusKm {
			nearby = append(nearby, nearbyCarpark{Carpark: cp, DistanceKm: distanceKm})
		}
	}

	c.JSON(http.StatusOK, nearby)
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// GetHourlyAggregates handles GET /api/carparks/{carpark_id}/aggregates?date=YYYY-MM-DD.
func (h *Handler) GetHourlyAggregates(c *gin.Context) {
	carparkID := c.Param("carpark_id")

	date := c.Query("date")
	if !dateRe.MatchString(date) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	rows, err := h.store.HourlyAggregatesByDate(c.Request.Context(), carparkID, date)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve aggregates"})
		return
	}
	c.JSON(http.StatusOK, rows)
}
