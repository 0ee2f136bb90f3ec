package types

// StartTorrentRequest is the body of a start-by-hash request
type StartTorrentRequest struct {
	Hash       string `json:"hash" binding:"required"`
	Name       string `json:"name"`
	Sequential bool   `json:"sequential"`
}

// CatalogEntry represents a finished file indexed into the media catalog
type CatalogEntry struct {
	ContentID string         `json:"contentId"`
	Name      string         `json:"name"`
	Size      int64          `json:"size"`
	MimeType  string         `json:"mimeType"`
	MediaKind MediaKind      `json:"mediaKind"`
	JobID     string         `json:"jobId,omitempty"`
	Metadata  *AudioMetadata `json:"metadata,omitempty"`

	// Path is where the file lives on disk; never exposed to clients
	Path string `json:"-"`
}

// AudioMetadata represents metadata for an audio file
type AudioMetadata struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	TrackNumber int    `json:"trackNumber,omitempty"`
}

// FileReady describes one finished file handed over for indexing
type FileReady struct {
	JobID       string
	DisplayName string
	MediaKind   MediaKind
	Path        string // absolute path on disk
	RelPath     string // path within the job's target directory
	Size        int64
}
