package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"streamspace/config"
	"streamspace/engine"
	"streamspace/middleware"
	"streamspace/services"
	"streamspace/store/memory"
	"streamspace/websocket"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// TestHelper provides utilities for testing the streamspace API
type TestHelper struct {
	Server       *httptest.Server
	DataDir      string
	Factory      *engine.FakeFactory
	Jobs         *memory.Store
	Hub          websocket.Hub
	Catalog      services.Catalog
	Orchestrator services.Orchestrator
	Descriptors  *services.DescriptorStore
}

// NewTestHelper wires the real handlers to a fake engine and memory store
func NewTestHelper(t *testing.T) *TestHelper {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dataDir := t.TempDir()
	descriptors, err := services.NewDescriptorStore(filepath.Join(dataDir, "torrents"))
	require.NoError(t, err)

	nop := zerolog.Nop()
	factory := engine.NewFakeFactory()
	jobs := memory.New()
	hub := websocket.NewHub(websocket.WithHubLogger(nop))
	catalog := services.NewCatalog(services.WithCatalogLogger(nop))
	orch := services.NewOrchestrator(factory, jobs, hub,
		services.WithIndexer(catalog),
		services.WithDescriptorStore(descriptors),
		services.WithOrchestratorLogger(nop),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go orch.Run(ctx)

	media := config.MediaConfig{
		VideoDir: filepath.Join(dataDir, "video"),
		AudioDir: filepath.Join(dataDir, "audio"),
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logging(nop))
	SetupRoutes(router, Handlers{
		Downloads: NewDownloadHandler(orch, jobs, descriptors, hub),
		Files:     NewFileHandler(catalog),
		Health:    NewHealthHandler("test", orch, media),
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	return &TestHelper{
		Server:       server,
		DataDir:      dataDir,
		Factory:      factory,
		Jobs:         jobs,
		Hub:          hub,
		Catalog:      catalog,
		Orchestrator: orch,
		Descriptors:  descriptors,
	}
}

// MakeRequest makes an HTTP request to the test server
func (h *TestHelper) MakeRequest(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, h.Server.URL+path, reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// DoJSON makes a request and unmarshals the JSON response
func (h *TestHelper) DoJSON(t *testing.T, method, path string, body, target interface{}) *http.Response {
	t.Helper()
	resp := h.MakeRequest(t, method, path, body)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if target != nil {
		require.NoError(t, json.Unmarshal(data, target), "body: %s", data)
	}
	return resp
}

// GetJSON makes a GET request and unmarshals the JSON response
func (h *TestHelper) GetJSON(t *testing.T, path string, target interface{}) *http.Response {
	return h.DoJSON(t, http.MethodGet, path, nil, target)
}

// Upload posts a multipart form with one file field
func (h *TestHelper) Upload(t *testing.T, path, filename string, content []byte, fields map[string]string, target interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := w.CreateFormFile("torrentFile", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	resp, err := http.Post(h.Server.URL+path, w.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if target != nil {
		require.NoError(t, json.Unmarshal(data, target), "body: %s", data)
	}
	return resp
}
