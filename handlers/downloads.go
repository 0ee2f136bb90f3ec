package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"streamspace/services"
	"streamspace/store"
	"streamspace/types"
	"streamspace/websocket"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MaxDescriptorSize bounds uploaded .torrent files
const MaxDescriptorSize = 10 << 20

// DownloadHandler handles download management endpoints
type DownloadHandler struct {
	orchestrator services.Orchestrator
	jobs         store.JobStore
	descriptors  *services.DescriptorStore
	hub          websocket.Hub
	logger       zerolog.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(o services.Orchestrator, jobs store.JobStore, descriptors *services.DescriptorStore, hub websocket.Hub) *DownloadHandler {
	return &DownloadHandler{
		orchestrator: o,
		jobs:         jobs,
		descriptors:  descriptors,
		hub:          hub,
		logger:       log.With().Str("component", "downloads").Logger(),
	}
}

// StartTorrent starts a video download from an info hash
func (h *DownloadHandler) StartTorrent(c *gin.Context) {
	var req types.StartTorrentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	id, ok := services.NormalizeID(req.Hash)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hash must be 40 hex characters"})
		return
	}

	job := types.NewJob(id, strings.TrimSpace(req.Name), types.MediaKindVideo)
	if req.Sequential {
		job.Strategy = types.StrategySequential
	}
	h.start(c, job, "Torrent download started")
}

// StartAudioTorrent starts an audio download by hash. Audio is always
// fetched sequentially so playback can begin early.
func (h *DownloadHandler) StartAudioTorrent(c *gin.Context) {
	id, ok := services.NormalizeID(c.Param("hash"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hash must be 40 hex characters"})
		return
	}

	job := types.NewJob(id, "", types.MediaKindAudio)
	job.Strategy = types.StrategySequential
	h.start(c, job, "Audio download started")
}

// UploadTorrent starts a video download from an uploaded .torrent file. The
// job is named after the file.
func (h *DownloadHandler) UploadTorrent(c *gin.Context) {
	header, err := c.FormFile("torrentFile")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "torrentFile is required",
			"details": err.Error(),
		})
		return
	}
	if header.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "torrent file is empty"})
		return
	}
	if header.Size > MaxDescriptorSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "torrent file is too large"})
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".torrent") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file must have a .torrent extension"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxDescriptorSize))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}

	id, err := services.ExtractID(data)
	if err != nil {
		writeError(c, err)
		return
	}

	path, err := h.descriptors.Save(id, data)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", id).Msg("failed to store descriptor")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store torrent file"})
		return
	}

	name := strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	job := types.NewJob(id, name, types.MediaKindVideo)
	job.DescriptorRef = path
	if sequential, _ := strconv.ParseBool(c.PostForm("sequential")); sequential {
		job.Strategy = types.StrategySequential
	}
	h.start(c, job, "Torrent file accepted")
}

func (h *DownloadHandler) start(c *gin.Context, job types.Job, message string) {
	h.orchestrator.Start(c.Request.Context(), job)

	c.JSON(http.StatusAccepted, gin.H{
		"message": message,
		"job": types.JobView{
			Job:   job,
			State: h.orchestrator.State(job.ID),
		},
	})
}

// GetAllJobs returns every persisted download with its current state
func (h *DownloadHandler) GetAllJobs(c *gin.Context) {
	jobs, err := h.jobs.FindAll(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list downloads"})
		return
	}

	views := make([]types.JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, types.JobView{Job: job, State: h.orchestrator.State(job.ID)})
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  views,
		"total": len(views),
	})
}

// CountJobs returns the number of persisted downloads
func (h *DownloadHandler) CountJobs(c *gin.Context) {
	n, err := store.Count(c.Request.Context(), h.jobs)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to count jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count downloads"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// GetJob returns a specific download by id
func (h *DownloadHandler) GetJob(c *gin.Context) {
	id, ok := services.NormalizeID(c.Param("hash"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hash must be 40 hex characters"})
		return
	}

	jobs, err := h.jobs.FindAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load download"})
		return
	}
	for _, job := range jobs {
		if job.ID == id {
			c.JSON(http.StatusOK, gin.H{
				"job": types.JobView{Job: job, State: h.orchestrator.State(id)},
			})
			return
		}
	}
	writeError(c, fmt.Errorf("get %s: %w", id, types.ErrJobNotFound))
}

// PauseJob pauses a running download
func (h *DownloadHandler) PauseJob(c *gin.Context) {
	id, _ := services.NormalizeID(c.Param("hash"))
	if err := h.orchestrator.Pause(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "download paused", "state": h.orchestrator.State(id)})
}

// CancelJob cancels a download and forgets it
func (h *DownloadHandler) CancelJob(c *gin.Context) {
	id, _ := services.NormalizeID(c.Param("hash"))
	if err := h.orchestrator.Cancel(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "download cancelled"})
}

// HandleWebSocketConnection streams progress of one download. The target may
// be connected before the download starts.
func (h *DownloadHandler) HandleWebSocketConnection(c *gin.Context) {
	id, ok := services.NormalizeID(c.Param("hash"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hash must be 40 hex characters"})
		return
	}

	upgrader := websocket.GetUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", id).Msg("websocket upgrade failed")
		return
	}

	websocket.NewClient(h.hub, conn, id).Register()
}

// HandleWebSocketAllConnection streams progress of every download
func (h *DownloadHandler) HandleWebSocketAllConnection(c *gin.Context) {
	upgrader := websocket.GetUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	websocket.NewWatcher(h.hub, conn).Register()
}

// writeError maps domain errors onto HTTP status codes
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrMalformedDescriptor):
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed torrent file", "details": err.Error()})
	case errors.Is(err, types.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}
