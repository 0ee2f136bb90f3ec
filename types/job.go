package types

import (
	"fmt"
	"strings"
	"time"
)

// MediaKind represents the kind of media a job fetches
type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
)

// ParseMediaKind parses a media kind, case-insensitively
func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(s))) {
	case MediaKindVideo:
		return MediaKindVideo, nil
	case MediaKindAudio:
		return MediaKindAudio, nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// Strategy determines the order in which the engine fetches pieces
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyRandomized Strategy = "randomized"
)

// ParseStrategy parses a download strategy, case-insensitively
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategySequential:
		return StrategySequential, nil
	case StrategyRandomized:
		return StrategyRandomized, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// JobState represents the observable lifecycle state of a job id
type JobState string

const (
	JobStateAbsent    JobState = "absent"
	JobStateRunning   JobState = "running"
	JobStatePaused    JobState = "paused"
	JobStateCompleted JobState = "completed"
	JobStateCancelled JobState = "cancelled"
)

// Terminal reports whether the state ends the job. Terminal states collapse
// back to absent as soon as they are reached.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateCancelled:
		return true
	case JobStateAbsent, JobStateRunning, JobStatePaused:
		return false
	}
	return false
}

// Job represents a persisted download job, identified by its canonical hash
type Job struct {
	ID            string    `json:"id"`
	DescriptorRef string    `json:"descriptorRef,omitempty"`
	DisplayName   string    `json:"displayName"`
	MovieCode     string    `json:"movieCode"`
	MediaKind     MediaKind `json:"mediaKind"`
	Strategy      Strategy  `json:"strategy"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewJob creates a job for the given id. Display name and movie code default
// to the id, and the strategy defaults to randomized.
func NewJob(id, displayName string, kind MediaKind) Job {
	if displayName == "" {
		displayName = id
	}
	return Job{
		ID:          id,
		DisplayName: displayName,
		MovieCode:   id,
		MediaKind:   kind,
		Strategy:    StrategyRandomized,
		CreatedAt:   time.Now().UTC(),
	}
}

// JobView is a job enriched with its in-memory state, as returned by the API
type JobView struct {
	Job
	State JobState `json:"state"`
}
