// Package engine defines the contract between the job orchestrator and the
// peer-to-peer transfer engine. A Handle controls one running transfer; it
// reports back through a Sink and never calls the orchestrator directly.
package engine

import "streamspace/types"

// Handle controls a single transfer. Pause and Stop are cooperative: they
// signal the engine and may return before in-flight I/O has drained.
type Handle interface {
	Resume() error
	Pause() error
	IsActive() bool
	Stop() error
}

// Sink receives asynchronous reports from a running handle.
// Implementations must not block the engine.
type Sink interface {
	Progress(ev types.ProgressEvent)
	FileReady(f types.FileReady)
	Complete(jobID string)
}

// Factory builds handles from job attributes
type Factory interface {
	New(job types.Job, sink Sink) (Handle, error)
}

// FactoryFunc adapts a function to the Factory interface
type FactoryFunc func(job types.Job, sink Sink) (Handle, error)

// New calls f(job, sink)
func (f FactoryFunc) New(job types.Job, sink Sink) (Handle, error) {
	return f(job, sink)
}

// EventKind identifies what an Event carries
type EventKind int

const (
	EventProgress EventKind = iota
	EventFileReady
	EventComplete
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventFileReady:
		return "file_ready"
	case EventComplete:
		return "complete"
	}
	return "unknown"
}

// Event is a Sink report turned into a message, for consumers that process
// engine output on their own goroutine.
type Event struct {
	Kind     EventKind
	JobID    string
	Progress types.ProgressEvent
	File     types.FileReady
}
