package handlers

import (
	"net/http"
	"os"
	"streamspace/services"
	"streamspace/types"
	"strings"

	"github.com/gin-gonic/gin"
)

// FileHandler handles catalog listing and streaming endpoints
type FileHandler struct {
	catalog services.Catalog
}

// NewFileHandler creates a new file handler
func NewFileHandler(catalog services.Catalog) *FileHandler {
	return &FileHandler{catalog: catalog}
}

// ListFiles returns indexed media, optionally filtered by ?kind=video|audio
func (h *FileHandler) ListFiles(c *gin.Context) {
	var kind types.MediaKind
	if raw := c.Query("kind"); raw != "" {
		parsed, err := types.ParseMediaKind(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid kind",
				"details": err.Error(),
			})
			return
		}
		kind = parsed
	}

	files := h.catalog.List(kind)
	c.JSON(http.StatusOK, gin.H{
		"files": files,
		"count": len(files),
	})
}

// StreamFile streams a catalog entry with support for range requests. Only
// indexed content ids can be served, so arbitrary paths are never opened.
func (h *FileHandler) StreamFile(c *gin.Context) {
	contentID := strings.TrimPrefix(c.Param("filepath"), "/")

	entry, ok := h.catalog.Lookup(contentID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "file not found",
			"path":  contentID,
		})
		return
	}

	file, err := os.Open(entry.Path)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found", "path": contentID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "file access error",
			"details": err.Error(),
		})
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "file access error"})
		return
	}

	c.Header("Content-Type", entry.MimeType)
	c.Header("Cache-Control", "public, max-age=3600")
	http.ServeContent(c.Writer, c.Request, entry.Name, info.ModTime(), file)
}
