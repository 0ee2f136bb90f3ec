package handlers

import "github.com/gin-gonic/gin"

// Handlers groups every route handler
type Handlers struct {
	Downloads *DownloadHandler
	Files     *FileHandler
	Health    *HealthHandler
}

// SetupRoutes configures all the HTTP routes
func SetupRoutes(r *gin.Engine, h Handlers) {
	// Health check endpoint
	r.GET("/health", h.Health.HealthCheck)

	// API routes group
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", h.Health.APIStatus)

		downloadsGroup := apiGroup.Group("/downloads")
		{
			// Start downloads
			downloadsGroup.POST("/torrent", h.Downloads.StartTorrent)
			downloadsGroup.POST("/torrent/file", h.Downloads.UploadTorrent)
			downloadsGroup.POST("/torrent/:hash", h.Downloads.StartAudioTorrent)

			// Manage downloads
			downloadsGroup.GET("", h.Downloads.GetAllJobs)
			downloadsGroup.GET("/count", h.Downloads.CountJobs)
			downloadsGroup.GET("/:hash", h.Downloads.GetJob)
			downloadsGroup.POST("/:hash/pause", h.Downloads.PauseJob)
			downloadsGroup.DELETE("/:hash", h.Downloads.CancelJob)
		}

		// WebSocket endpoints for real-time progress
		wsGroup := apiGroup.Group("/ws")
		{
			wsGroup.GET("/downloads/:hash", h.Downloads.HandleWebSocketConnection)
			wsGroup.GET("/downloads", h.Downloads.HandleWebSocketAllConnection)
		}

		// Catalog listing and streaming
		apiGroup.GET("/files", h.Files.ListFiles)
		apiGroup.GET("/files/stream/*filepath", h.Files.StreamFile)
	}
}
