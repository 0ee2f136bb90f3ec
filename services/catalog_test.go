package services

import (
	"context"
	"os"
	"path/filepath"
	"streamspace/types"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalFLAC is a stream marker plus a STREAMINFO header, enough for tag probing
func minimalFLAC() []byte {
	return []byte("fLaC\x00\x00\x00\x22\x10\x00\x10\x00\x00\x00\x0F\x00\x00\x0F\x0A\xC4\x42\xF0\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00")
}

func minimalMP3() []byte {
	return []byte("ID3\x03\x00\x00\x00\x00\x00\x00")
}

func writeFiles(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, content, 0o644))
	}
}

func newTestCatalog() Catalog {
	return NewCatalog(WithCatalogLogger(zerolog.Nop()))
}

// TestMetadataFromPath tests path-based metadata extraction
func TestMetadataFromPath(t *testing.T) {
	tests := []struct {
		name                string
		filePath            string
		expectedTitle       string
		expectedArtist      string
		expectedAlbum       string
		expectedTrackNumber int
	}{
		{
			name:                "standard structure with track number",
			filePath:            "Artist Name/Album Name/01 - Song Title.flac",
			expectedTitle:       "Song Title",
			expectedArtist:      "Artist Name",
			expectedAlbum:       "Album Name",
			expectedTrackNumber: 1,
		},
		{
			name:                "double digit track number",
			filePath:            "The Beatles/Abbey Road/12 - Come Together.flac",
			expectedTitle:       "Come Together",
			expectedArtist:      "The Beatles",
			expectedAlbum:       "Abbey Road",
			expectedTrackNumber: 12,
		},
		{
			name:                "track number with dot",
			filePath:            "Artist/Album/3. Track Name.mp3",
			expectedTitle:       "Track Name",
			expectedArtist:      "Artist",
			expectedAlbum:       "Album",
			expectedTrackNumber: 3,
		},
		{
			name:                "no track number",
			filePath:            "Artist/Album/Song Title.flac",
			expectedTitle:       "Song Title",
			expectedArtist:      "Artist",
			expectedAlbum:       "Album",
			expectedTrackNumber: 0,
		},
		{
			name:                "single directory level",
			filePath:            "Artist/Song.mp3",
			expectedTitle:       "Song",
			expectedArtist:      "",
			expectedAlbum:       "Artist",
			expectedTrackNumber: 0,
		},
		{
			name:                "flat file",
			filePath:            "Song.flac",
			expectedTitle:       "Song",
			expectedArtist:      "",
			expectedAlbum:       "",
			expectedTrackNumber: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metadata := metadataFromPath(tt.filePath)

			assert.Equal(t, tt.expectedTitle, metadata.Title)
			assert.Equal(t, tt.expectedArtist, metadata.Artist)
			assert.Equal(t, tt.expectedAlbum, metadata.Album)
			assert.Equal(t, tt.expectedTrackNumber, metadata.TrackNumber)
		})
	}
}

// TestContentType tests MIME type detection
func TestContentType(t *testing.T) {
	tests := []struct {
		ext          string
		expectedType string
	}{
		{".flac", "audio/flac"},
		{".mp3", "audio/mpeg"},
		{".mkv", "video/x-matroska"},
		{".mp4", "video/mp4"},
		{"", "application/octet-stream"},
		{".nope", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			assert.Equal(t, tt.expectedType, contentType(tt.ext))
		})
	}
}

func TestOnFileReadyIndexesStreamableFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string][]byte{
		"movie.mp4":  []byte("video"),
		"readme.txt": []byte("text"),
	})
	c := newTestCatalog()
	ctx := context.Background()

	require.NoError(t, c.OnFileReady(ctx, types.FileReady{
		JobID:       "XYZ",
		DisplayName: "Movie Name",
		MediaKind:   types.MediaKindVideo,
		Path:        filepath.Join(root, "movie.mp4"),
		RelPath:     "movie.mp4",
	}))
	require.NoError(t, c.OnFileReady(ctx, types.FileReady{
		JobID:     "XYZ",
		MediaKind: types.MediaKindVideo,
		Path:      filepath.Join(root, "readme.txt"),
		RelPath:   "readme.txt",
	}))

	entries := c.List("")
	require.Len(t, entries, 1)
	assert.Equal(t, "video/Movie Name/movie.mp4", entries[0].ContentID)
	assert.Equal(t, "movie.mp4", entries[0].Name)
	assert.Equal(t, int64(5), entries[0].Size)
	assert.Equal(t, "video/mp4", entries[0].MimeType)
	assert.Equal(t, "XYZ", entries[0].JobID)
	assert.Nil(t, entries[0].Metadata)
}

func TestOnFileReadyMissingFile(t *testing.T) {
	c := newTestCatalog()

	err := c.OnFileReady(context.Background(), types.FileReady{
		MediaKind: types.MediaKindVideo,
		Path:      filepath.Join(t.TempDir(), "gone.mp4"),
		RelPath:   "gone.mp4",
	})

	assert.Error(t, err)
	assert.Empty(t, c.List(""))
}

// TestIndexDirectory tests scanning and FLAC prioritization
func TestIndexDirectory(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string][]byte{
		"Artist1/Album1/01 - Song1.flac": minimalFLAC(),
		"Artist1/Album1/02 - Song2.mp3":  minimalMP3(),
		"Artist2/Album2/Track.flac":      minimalFLAC(),
		"Artist2/Album2/Track.mp3":       minimalMP3(), // Same name as FLAC
		"Artist3/Album3/NoExt":           []byte("not an audio file"),
		"Artist3/Album3/document.txt":    []byte("text file"),
	})
	c := newTestCatalog()

	n, err := c.IndexDirectory(context.Background(), root, types.MediaKindAudio)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	entries := c.List(types.MediaKindAudio)
	require.Len(t, entries, 3)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ContentID)
		assert.Greater(t, e.Size, int64(0))
		require.NotNil(t, e.Metadata)
	}
	assert.Equal(t, []string{
		"audio/Artist1/Album1/01 - Song1.flac",
		"audio/Artist1/Album1/02 - Song2.mp3",
		"audio/Artist2/Album2/Track.flac",
	}, ids)

	assert.Empty(t, c.List(types.MediaKindVideo))
}

func TestIndexDirectoryMissingRoot(t *testing.T) {
	c := newTestCatalog()

	n, err := c.IndexDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"), types.MediaKindVideo)

	assert.NoError(t, err)
	assert.Zero(t, n)
}

// TestMetadataExtractionWithCorruptedFiles tests handling of corrupted files
func TestMetadataExtractionWithCorruptedFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string][]byte{
		"Artist/Album/corrupted.flac":      []byte("not a real flac file"),
		"Artist/Album/empty.mp3":           []byte(""),
		"Artist/Album/01 - Good Song.flac": []byte("also not flac but has good path"),
	})
	c := newTestCatalog()

	_, err := c.IndexDirectory(context.Background(), root, types.MediaKindAudio)
	require.NoError(t, err)

	entries := c.List(types.MediaKindAudio)
	require.Len(t, entries, 3)

	for _, e := range entries {
		require.NotNil(t, e.Metadata)
		assert.Equal(t, "Artist", e.Metadata.Artist)
		assert.Equal(t, "Album", e.Metadata.Album)

		if e.Name == "01 - Good Song.flac" {
			assert.Equal(t, "Good Song", e.Metadata.Title)
			assert.Equal(t, 1, e.Metadata.TrackNumber)
		}
	}
}

func TestWithExtensions(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string][]byte{
		"a.mp4": []byte("x"),
		"b.ts":  []byte("x"),
	})
	c := NewCatalog(WithCatalogLogger(zerolog.Nop()), WithExtensions([]string{"TS", " "}, nil))

	n, err := c.IndexDirectory(context.Background(), root, types.MediaKindVideo)
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	entries := c.List(types.MediaKindVideo)
	require.Len(t, entries, 1)
	assert.Equal(t, "video/b.ts", entries[0].ContentID)
}

// BenchmarkMetadataFromPath benchmarks metadata extraction performance
func BenchmarkMetadataFromPath(b *testing.B) {
	testPath := "Test Artist/Test Album/01 - Test Song.flac"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		metadataFromPath(testPath)
	}
}
