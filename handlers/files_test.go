package handlers

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"streamspace/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexVideo(t *testing.T, helper *TestHelper, name string, content []byte) {
	t.Helper()
	root := filepath.Join(helper.DataDir, "video")
	require.NoError(t, os.MkdirAll(root, 0o755))
	path := filepath.Join(root, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	require.NoError(t, helper.Catalog.OnFileReady(context.Background(), types.FileReady{
		JobID:     testHash,
		MediaKind: types.MediaKindVideo,
		Path:      path,
		RelPath:   name,
	}))
}

func TestFileListingEndpoint(t *testing.T) {
	helper := NewTestHelper(t)
	indexVideo(t, helper, "clip.mp4", []byte("0123456789"))

	var response struct {
		Files []types.CatalogEntry `json:"files"`
		Count int                  `json:"count"`
	}
	resp := helper.GetJSON(t, "/api/files", &response)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, response.Count)
	assert.Equal(t, "video/clip.mp4", response.Files[0].ContentID)
	assert.Equal(t, int64(10), response.Files[0].Size)
	assert.Empty(t, response.Files[0].Path, "disk paths are not exposed")

	resp = helper.GetJSON(t, "/api/files?kind=audio", &response)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, response.Count)

	resp = helper.GetJSON(t, "/api/files?kind=podcast", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamFile(t *testing.T) {
	helper := NewTestHelper(t)
	indexVideo(t, helper, "clip.mp4", []byte("0123456789"))

	resp := helper.MakeRequest(t, http.MethodGet, "/api/files/stream/video/clip.mp4", nil)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	assert.Equal(t, "0123456789", string(body))
}

func TestStreamFileRange(t *testing.T) {
	helper := NewTestHelper(t)
	indexVideo(t, helper, "clip.mp4", []byte("0123456789"))

	req, err := http.NewRequest(http.MethodGet, helper.Server.URL+"/api/files/stream/video/clip.mp4", nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=2-5")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 2-5/10", resp.Header.Get("Content-Range"))
	assert.Equal(t, "2345", string(body))
}

func TestStreamFileUnknownContent(t *testing.T) {
	helper := NewTestHelper(t)

	resp := helper.GetJSON(t, "/api/files/stream/../../etc/passwd", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
