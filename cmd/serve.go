package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"streamspace/config"
	"streamspace/engine"
	"streamspace/engine/torrent"
	"streamspace/handlers"
	"streamspace/logging"
	"streamspace/middleware"
	"streamspace/services"
	"streamspace/store"
	filestore "streamspace/store/file"
	"streamspace/store/memory"
	redisstore "streamspace/store/redis"
	"streamspace/types"
	"streamspace/websocket"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return StartWebServer(ctx, a.cfg)
		},
	}
}

// StartWebServer wires every component and serves until ctx is cancelled
func StartWebServer(ctx context.Context, cfg config.Config) error {
	// Set production mode if not specified
	if gin.Mode() == gin.DebugMode && cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	retryOpts := []services.RetryOption{
		services.WithMaxAttempts(cfg.Retry.MaxAttempts),
		services.WithWait(cfg.Retry.Wait),
		services.WithRetryLogger(logging.Component("retry")),
	}

	jobs, closeStore, err := openStore(ctx, cfg.Storage, retryOpts)
	if err != nil {
		return err
	}
	defer closeStore()

	factory, closeEngine, err := openEngine(ctx, cfg, retryOpts)
	if err != nil {
		return err
	}
	defer closeEngine()

	descriptors, err := services.NewDescriptorStore(cfg.Media.DescriptorDir)
	if err != nil {
		return err
	}

	// Initialize services
	hub := websocket.NewHub(websocket.WithHubLogger(logging.Component("hub")))
	catalog := services.NewCatalog(
		services.WithExtensions(cfg.Media.VideoExtensions, cfg.Media.AudioExtensions),
		services.WithCatalogLogger(logging.Component("catalog")),
	)
	orchestrator := services.NewOrchestrator(factory, jobs, hub,
		services.WithIndexer(catalog),
		services.WithDescriptorStore(descriptors),
		services.WithOrchestratorLogger(logging.Component("orchestrator")),
	)

	indexLocalMedia(ctx, catalog, cfg.Media)

	go orchestrator.Run(ctx)
	go orchestrator.StartAllPending(ctx)

	// Setup router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.Logging(logging.Component("http")))
	r.Use(middleware.Security())

	handlers.SetupRoutes(r, handlers.Handlers{
		Downloads: handlers.NewDownloadHandler(orchestrator, jobs, descriptors, hub),
		Files:     handlers.NewFileHandler(catalog),
		Health:    handlers.NewHealthHandler(Version, orchestrator, cfg.Media),
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("version", Version).Msg("streamspace web server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore builds the job store selected by cfg.Driver
func openStore(ctx context.Context, cfg config.StorageConfig, retryOpts []services.RetryOption) (store.JobStore, func(), error) {
	switch cfg.Driver {
	case config.StorageMemory:
		log.Warn().Msg("using in-memory job store, downloads will not survive a restart")
		return memory.New(), func() {}, nil

	case config.StorageRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		s := redisstore.New(client)
		_, ok := services.Retry(ctx, func(ctx context.Context) (struct{}, bool, error) {
			if err := s.Ping(ctx); err != nil {
				return struct{}{}, false, err
			}
			return struct{}{}, true, nil
		}, retryOpts...)
		if !ok {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis at %s is unreachable", cfg.RedisAddr)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis job store")
		return s, func() { _ = client.Close() }, nil

	default:
		s, err := filestore.New(cfg.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open job store: %w", err)
		}
		log.Info().Str("dir", cfg.Dir).Msg("using file job store")
		return s, func() {}, nil
	}
}

// openEngine builds the transfer engine. Starting the torrent client is
// retried since its listen port may still be held by a previous process.
func openEngine(ctx context.Context, cfg config.Config, retryOpts []services.RetryOption) (engine.Factory, func(), error) {
	if cfg.Engine.Driver == "fake" {
		log.Warn().Msg("using fake transfer engine")
		return engine.NewFakeFactory(), func() {}, nil
	}

	opts := torrent.Options{
		VideoDir:          cfg.Media.VideoDir,
		AudioDir:          cfg.Media.AudioDir,
		DataDir:           cfg.Engine.DataDir,
		Seed:              cfg.Engine.Seed,
		ListenPort:        cfg.Engine.ListenPort,
		RequireEncryption: cfg.Engine.RequireEncryption,
	}
	factory, ok := services.Retry(ctx, func(ctx context.Context) (*torrent.Factory, bool, error) {
		f, err := torrent.NewFactory(opts, logging.Component("torrent"))
		return f, err == nil, err
	}, retryOpts...)
	if !ok {
		return nil, nil, fmt.Errorf("could not start torrent client on port %d", opts.ListenPort)
	}
	return factory, func() {
		if err := factory.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close torrent client")
		}
	}, nil
}

// indexLocalMedia adds files already present in the media directories to the
// catalog, so downloads from earlier runs can be streamed.
func indexLocalMedia(ctx context.Context, catalog services.Catalog, media config.MediaConfig) {
	var g errgroup.Group
	dirs := map[types.MediaKind]string{
		types.MediaKindVideo: media.VideoDir,
		types.MediaKindAudio: media.AudioDir,
	}
	for kind, dir := range dirs {
		g.Go(func() error {
			n, err := catalog.IndexDirectory(ctx, dir, kind)
			if err != nil {
				log.Warn().Err(err).Str("dir", dir).Msg("failed to index local media")
				return nil
			}
			log.Info().Int("count", n).Str("kind", string(kind)).Msg("indexed local media")
			return nil
		})
	}
	_ = g.Wait()
}
