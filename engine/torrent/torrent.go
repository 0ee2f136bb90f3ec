// Package torrent implements engine.Factory on top of anacrolix/torrent.
package torrent

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"streamspace/engine"
	"streamspace/types"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"github.com/rs/zerolog"
)

// Options configures the shared torrent client and per-job target directories
type Options struct {
	VideoDir          string
	AudioDir          string
	DataDir           string
	Seed              bool
	ListenPort        int
	RequireEncryption bool
	PollInterval      time.Duration
	Readahead         int64
}

// Factory owns one torrent client shared by every handle it builds
type Factory struct {
	client *torrent.Client
	opts   Options
	logger zerolog.Logger
}

var _ engine.Factory = (*Factory)(nil)

// NewFactory starts a torrent client configured from opts
func NewFactory(opts Options, logger zerolog.Logger) (*Factory, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Readahead <= 0 {
		opts.Readahead = 16 << 20
	}

	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = opts.DataDir
	cfg.Seed = opts.Seed
	cfg.ListenPort = opts.ListenPort
	if opts.RequireEncryption {
		cfg.HeaderObfuscationPolicy = torrent.HeaderObfuscationPolicy{
			Preferred:        true,
			RequirePreferred: true,
		}
	}

	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("start torrent client: %w", err)
	}
	return &Factory{client: client, opts: opts, logger: logger}, nil
}

// Close shuts the shared client down
func (f *Factory) Close() error {
	if errs := f.client.Close(); len(errs) > 0 {
		return fmt.Errorf("close torrent client: %v", errs)
	}
	return nil
}

// MagnetURI builds the magnet link for an info hash
func MagnetURI(id string) string {
	return "magnet:?xt=urn:btih:" + id
}

// New adds the job's torrent to the client. The descriptor file is used when
// present, otherwise the job id is resolved as a magnet link.
func (f *Factory) New(job types.Job, sink engine.Sink) (engine.Handle, error) {
	spec, err := f.spec(job)
	if err != nil {
		return nil, err
	}

	targetDir := f.targetDir(job.MediaKind)
	store := storage.NewFile(targetDir)
	spec.Storage = store

	t, _, err := f.client.AddTorrentSpec(spec)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("add torrent %s: %w", job.ID, err)
	}

	f.logger.Info().
		Str("job_id", job.ID).
		Str("target_dir", targetDir).
		Str("strategy", string(job.Strategy)).
		Bool("seed", f.opts.Seed).
		Msg("torrent added")

	return &handle{
		job:       job,
		t:         t,
		store:     store,
		sink:      sink,
		targetDir: targetDir,
		opts:      f.opts,
		logger:    f.logger.With().Str("job_id", job.ID).Logger(),
	}, nil
}

func (f *Factory) spec(job types.Job) (*torrent.TorrentSpec, error) {
	if job.DescriptorRef != "" {
		mi, err := metainfo.LoadFromFile(job.DescriptorRef)
		if err != nil {
			return nil, fmt.Errorf("load descriptor %s: %w", job.DescriptorRef, err)
		}
		return torrent.TorrentSpecFromMetaInfoErr(mi)
	}
	return torrent.TorrentSpecFromMagnetUri(MagnetURI(job.ID))
}

func (f *Factory) targetDir(kind types.MediaKind) string {
	switch kind {
	case types.MediaKindAudio:
		return f.opts.AudioDir
	case types.MediaKindVideo:
		return f.opts.VideoDir
	}
	return f.opts.VideoDir
}

// handle drives one torrent. A monitor goroutine runs while the handle is
// active and reports progress to the sink.
type handle struct {
	job       types.Job
	t         *torrent.Torrent
	store     storage.ClientImplCloser
	sink      engine.Sink
	targetDir string
	opts      Options
	logger    zerolog.Logger

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
}

func (h *handle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active {
		return nil
	}
	h.t.AllowDataDownload()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.active = true
	go h.monitor(ctx)
	return nil
}

func (h *handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.t.DisallowDataDownload()
	h.halt()
	return nil
}

func (h *handle) IsActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

func (h *handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.halt()
	h.t.Drop()
	return h.store.Close()
}

// halt must be called with mu held
func (h *handle) halt() {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.active = false
}

func (h *handle) monitor(ctx context.Context) {
	select {
	case <-h.t.GotInfo():
	case <-ctx.Done():
		return
	}

	h.t.DownloadAll()
	if h.job.Strategy == types.StrategySequential {
		go h.readSequentially(ctx)
	}

	ticker := time.NewTicker(h.opts.PollInterval)
	defer ticker.Stop()

	lastBytes := h.t.BytesCompleted()
	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			done := h.t.BytesCompleted()
			total := h.t.Length()
			stats := h.t.Stats()

			var eta time.Duration
			if elapsed := now.Sub(lastTick).Seconds(); elapsed > 0 && done > lastBytes {
				rate := float64(done-lastBytes) / elapsed
				eta = time.Duration(float64(total-done) / rate * float64(time.Second))
			}
			lastBytes, lastTick = done, now

			var percent float64
			if total > 0 {
				percent = float64(done) / float64(total) * 100
			}
			complete := total > 0 && done >= total

			h.sink.Progress(types.ProgressEvent{
				JobID:     h.job.ID,
				Percent:   percent,
				BytesDown: stats.BytesReadUsefulData.Int64(),
				BytesUp:   stats.BytesWrittenData.Int64(),
				PeerCount: stats.ActivePeers,
				ETA:       eta,
			})

			// the final complete message is published by the orchestrator
			if complete {
				h.reportFiles()
				h.sink.Complete(h.job.ID)
				return
			}
		}
	}
}

// readSequentially pulls the torrent front to back so pieces are requested
// in order, which lets playback start before the download finishes.
func (h *handle) readSequentially(ctx context.Context) {
	r := h.t.NewReader()
	r.SetReadahead(h.opts.Readahead)
	go func() {
		<-ctx.Done()
		_ = r.Close()
	}()
	if _, err := io.Copy(io.Discard, r); err != nil && ctx.Err() == nil {
		h.logger.Debug().Err(err).Msg("sequential reader stopped")
	}
}

func (h *handle) reportFiles() {
	for _, f := range h.t.Files() {
		rel := filepath.FromSlash(f.Path())
		h.sink.FileReady(types.FileReady{
			JobID:       h.job.ID,
			DisplayName: h.job.DisplayName,
			MediaKind:   h.job.MediaKind,
			Path:        filepath.Join(h.targetDir, rel),
			RelPath:     rel,
			Size:        f.Length(),
		})
	}
}
