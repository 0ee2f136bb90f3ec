package handlers

import (
	"net/http"
	"streamspace/config"
	"streamspace/services"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	version      string
	orchestrator services.Orchestrator
	media        config.MediaConfig
	started      time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, o services.Orchestrator, media config.MediaConfig) *HealthHandler {
	return &HealthHandler{
		version:      version,
		orchestrator: o,
		media:        media,
		started:      time.Now(),
	}
}

// HealthCheck returns the health status of the service
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "streamspace",
		"version":   h.version,
		"timestamp": time.Now().Unix(),
	})
}

// APIStatus returns the status of the API
func (h *HealthHandler) APIStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":          "Streamspace API is running",
		"active_downloads": len(h.orchestrator.Handles()),
		"video_location":   h.media.VideoDir,
		"audio_location":   h.media.AudioDir,
		"uptime":           time.Since(h.started).Round(time.Second).String(),
	})
}
