package services

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"streamspace/types"
	"strconv"
	"strings"
	"sync"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Default streamable extensions per media kind
var (
	DefaultVideoExtensions = []string{".mp4", ".mkv", ".webm", ".avi", ".mov", ".m4v"}
	DefaultAudioExtensions = []string{".mp3", ".flac", ".m4a", ".ogg", ".wav", ".aac"}
)

var trackPrefix = regexp.MustCompile(`^(\d+)[\.\-\s]+(.+)`)

// Catalog indexes finished media files. It implements Indexer.
type Catalog interface {
	Indexer
	IndexDirectory(ctx context.Context, root string, kind types.MediaKind) (int, error)
	List(kind types.MediaKind) []types.CatalogEntry
	Lookup(contentID string) (types.CatalogEntry, bool)
	ExtractAudioMetadata(filePath string) *types.AudioMetadata
}

// catalog keeps entries in memory, keyed by content id
type catalog struct {
	mu      sync.RWMutex
	entries map[string]types.CatalogEntry

	videoExt map[string]bool
	audioExt map[string]bool
	logger   zerolog.Logger
}

// CatalogOption configures a catalog
type CatalogOption func(*catalog)

// WithExtensions overrides the streamable extensions per media kind
func WithExtensions(video, audio []string) CatalogOption {
	return func(c *catalog) {
		if len(video) > 0 {
			c.videoExt = extensionSet(video)
		}
		if len(audio) > 0 {
			c.audioExt = extensionSet(audio)
		}
	}
}

// WithCatalogLogger sets the catalog's logger
func WithCatalogLogger(l zerolog.Logger) CatalogOption {
	return func(c *catalog) { c.logger = l }
}

// NewCatalog creates an empty catalog
func NewCatalog(opts ...CatalogOption) Catalog {
	c := &catalog{
		entries:  make(map[string]types.CatalogEntry),
		videoExt: extensionSet(DefaultVideoExtensions),
		audioExt: extensionSet(DefaultAudioExtensions),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnFileReady indexes one finished file. Files whose extension is not
// streamable for the job's media kind are skipped.
func (c *catalog) OnFileReady(_ context.Context, f types.FileReady) error {
	ext := strings.ToLower(filepath.Ext(f.Path))
	if !c.streamable(f.MediaKind, ext) {
		c.logger.Debug().Str("path", f.Path).Msg("skipping non-streamable file")
		return nil
	}

	size := f.Size
	if size <= 0 {
		info, err := os.Stat(f.Path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", f.Path, err)
		}
		size = info.Size()
	}

	entry := types.CatalogEntry{
		ContentID: contentID(f.MediaKind, f.DisplayName, f.RelPath),
		Name:      filepath.Base(f.Path),
		Size:      size,
		MimeType:  contentType(ext),
		MediaKind: f.MediaKind,
		JobID:     f.JobID,
		Path:      f.Path,
	}
	if f.MediaKind == types.MediaKindAudio {
		entry.Metadata = c.ExtractAudioMetadata(f.Path)
	}

	c.mu.Lock()
	c.entries[entry.ContentID] = entry
	c.mu.Unlock()

	c.logger.Info().Str("job_id", f.JobID).Str("content_id", entry.ContentID).Msg("indexed file")
	return nil
}

// IndexDirectory walks root and indexes every streamable file of the given
// kind found there, returning how many were indexed.
func (c *catalog) IndexDirectory(ctx context.Context, root string, kind types.MediaKind) (int, error) {
	count := 0
	err := filepath.Walk(root, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			c.logger.Warn().Err(err).Str("path", filePath).Msg("error accessing path")
			return nil // Continue walking, don't fail entire scan
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() || !c.streamable(kind, strings.ToLower(filepath.Ext(filePath))) {
			return nil
		}

		rel, err := filepath.Rel(root, filePath)
		if err != nil {
			rel = info.Name()
		}
		if err := c.OnFileReady(ctx, types.FileReady{
			MediaKind: kind,
			Path:      filePath,
			RelPath:   rel,
			Size:      info.Size(),
		}); err != nil {
			return nil
		}
		count++
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	return count, err
}

// List returns entries of one kind, or all entries when kind is empty,
// sorted by content id
func (c *catalog) List(kind types.MediaKind) []types.CatalogEntry {
	c.mu.RLock()
	out := make([]types.CatalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if kind == "" || e.MediaKind == kind {
			out = append(out, e)
		}
	}
	c.mu.RUnlock()

	out = preferLossless(out)
	sort.Slice(out, func(i, k int) bool { return out[i].ContentID < out[k].ContentID })
	return out
}

// preferLossless hides lossy audio entries that have a FLAC sibling with the
// same path stem
func preferLossless(entries []types.CatalogEntry) []types.CatalogEntry {
	flac := make(map[string]bool)
	for _, e := range entries {
		if e.MediaKind == types.MediaKindAudio && strings.EqualFold(path.Ext(e.ContentID), ".flac") {
			flac[stem(e.ContentID)] = true
		}
	}
	if len(flac) == 0 {
		return entries
	}

	result := entries[:0]
	for _, e := range entries {
		lossless := strings.EqualFold(path.Ext(e.ContentID), ".flac")
		if e.MediaKind == types.MediaKindAudio && !lossless && flac[stem(e.ContentID)] {
			continue
		}
		result = append(result, e)
	}
	return result
}

func stem(p string) string {
	return strings.TrimSuffix(p, path.Ext(p))
}

// Lookup returns the entry for a content id
func (c *catalog) Lookup(contentID string) (types.CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[contentID]
	return e, ok
}

// ExtractAudioMetadata reads tags from an audio file, falling back to the
// Artist/Album/NN - Title path convention for missing fields
func (c *catalog) ExtractAudioMetadata(filePath string) *types.AudioMetadata {
	fallback := metadataFromPath(filePath)

	file, err := os.Open(filePath)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", filePath).Msg("could not open audio file")
		return fallback
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		c.logger.Debug().Err(err).Str("path", filePath).Msg("could not parse audio metadata")
		return fallback
	}

	metadata := &types.AudioMetadata{
		Title:  meta.Title(),
		Artist: meta.Artist(),
		Album:  meta.Album(),
	}
	metadata.TrackNumber, _ = meta.Track()

	if metadata.Title == "" {
		metadata.Title = fallback.Title
	}
	if metadata.Artist == "" {
		metadata.Artist = fallback.Artist
	}
	if metadata.Album == "" {
		metadata.Album = fallback.Album
	}
	if metadata.TrackNumber == 0 {
		metadata.TrackNumber = fallback.TrackNumber
	}
	return metadata
}

func (c *catalog) streamable(kind types.MediaKind, ext string) bool {
	switch kind {
	case types.MediaKindVideo:
		return c.videoExt[ext]
	case types.MediaKindAudio:
		return c.audioExt[ext]
	}
	return false
}

// metadataFromPath parses Artist/Album/Track.ext
func metadataFromPath(filePath string) *types.AudioMetadata {
	metadata := &types.AudioMetadata{}

	parts := strings.Split(filepath.ToSlash(filePath), "/")
	if len(parts) >= 3 {
		metadata.Artist = parts[len(parts)-3]
	}
	if len(parts) >= 2 {
		metadata.Album = parts[len(parts)-2]
	}

	filename := filepath.Base(filePath)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))

	// Remove common track number prefixes like "01 - ", "1. "
	if matches := trackPrefix.FindStringSubmatch(title); len(matches) > 2 {
		title = matches[2]
		if n, err := strconv.Atoi(matches[1]); err == nil {
			metadata.TrackNumber = n
		}
	}
	metadata.Title = title
	return metadata
}

func contentID(kind types.MediaKind, displayName, rel string) string {
	parts := []string{string(kind)}
	if displayName != "" && !strings.Contains(filepath.ToSlash(rel), "/") {
		parts = append(parts, displayName)
	}
	parts = append(parts, filepath.ToSlash(rel))
	return strings.Join(parts, "/")
}

func contentType(ext string) string {
	switch ext {
	case ".flac":
		return "audio/flac"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func extensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}
