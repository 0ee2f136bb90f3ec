package types

import (
	"fmt"
	"time"
)

// ProgressEvent is a raw progress report emitted by the transfer engine
type ProgressEvent struct {
	JobID     string
	Percent   float64
	BytesDown int64
	BytesUp   int64
	PeerCount int
	ETA       time.Duration
	Complete  bool
}

// ProgressMessage represents a WebSocket progress update message
type ProgressMessage struct {
	JobID      string    `json:"jobId"`
	Type       string    `json:"type"`       // "progress", "complete"
	Progress   float64   `json:"progress"`   // 0-100 percentage
	Percent    string    `json:"percent"`    // formatted percentage like "42.5%"
	Downloaded string    `json:"downloaded"` // formatted size like "2.1 MB"
	Uploaded   string    `json:"uploaded"`
	Peers      int       `json:"peers"`
	ETA        string    `json:"eta"`
	Complete   bool      `json:"complete"`
	Timestamp  time.Time `json:"timestamp"`
}

// Message types carried in ProgressMessage.Type
const (
	MessageTypeProgress = "progress"
	MessageTypeComplete = "complete"
)

// NewProgressMessage renders an engine event for direct display
func NewProgressMessage(ev ProgressEvent) ProgressMessage {
	msgType := MessageTypeProgress
	if ev.Complete {
		msgType = MessageTypeComplete
	}
	return ProgressMessage{
		JobID:      ev.JobID,
		Type:       msgType,
		Progress:   ev.Percent,
		Percent:    fmt.Sprintf("%.1f%%", ev.Percent),
		Downloaded: FormatBytes(ev.BytesDown),
		Uploaded:   FormatBytes(ev.BytesUp),
		Peers:      ev.PeerCount,
		ETA:        FormatETA(ev.ETA),
		Complete:   ev.Complete,
		Timestamp:  time.Now(),
	}
}

// FormatBytes formats a byte count using binary units
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatETA formats a remaining duration, "-" when unknown
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
