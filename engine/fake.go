package engine

import (
	"errors"
	"streamspace/types"
	"sync"
	"sync/atomic"
	"time"
)

// ErrFake is the error injected by FakeFactory when configured to fail
var ErrFake = errors.New("fake engine failure")

// FakeFactory builds FakeHandles and records every handle it created.
// It is used by tests and by the server's --engine=fake mode.
type FakeFactory struct {
	mu      sync.Mutex
	handles map[string][]*FakeHandle

	// FailNew makes New return ErrFake
	FailNew bool
	// FailResume makes every created handle fail Resume with ErrFake
	FailResume bool
	// Delay is slept inside New, widening race windows in tests
	Delay time.Duration

	created atomic.Int64
}

// NewFakeFactory creates an empty fake factory
func NewFakeFactory() *FakeFactory {
	return &FakeFactory{handles: make(map[string][]*FakeHandle)}
}

// New creates a FakeHandle for the job
func (f *FakeFactory) New(job types.Job, sink Sink) (Handle, error) {
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNew {
		return nil, ErrFake
	}
	h := &FakeHandle{Job: job, sink: sink, failResume: f.FailResume}
	f.handles[job.ID] = append(f.handles[job.ID], h)
	f.created.Add(1)
	return h, nil
}

// Created returns the total number of handles built
func (f *FakeFactory) Created() int {
	return int(f.created.Load())
}

// Handles returns the handles built for a job id, oldest first
func (f *FakeFactory) Handles(id string) []*FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeHandle, len(f.handles[id]))
	copy(out, f.handles[id])
	return out
}

// Last returns the most recent handle for a job id, or nil
func (f *FakeFactory) Last(id string) *FakeHandle {
	hs := f.Handles(id)
	if len(hs) == 0 {
		return nil
	}
	return hs[len(hs)-1]
}

// FakeHandle is an in-memory Handle that counts calls
type FakeHandle struct {
	Job types.Job

	sink       Sink
	failResume bool

	mu      sync.Mutex
	active  bool
	resumes int
	pauses  int
	stops   int
}

// Resume marks the handle active
func (h *FakeHandle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resumes++
	if h.failResume {
		return ErrFake
	}
	h.active = true
	return nil
}

// Pause marks the handle inactive
func (h *FakeHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauses++
	h.active = false
	return nil
}

// IsActive reports whether the handle is running
func (h *FakeHandle) IsActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Stop marks the handle inactive and counts the stop
func (h *FakeHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	h.active = false
	return nil
}

// Counts returns how many times Resume, Pause and Stop were called
func (h *FakeHandle) Counts() (resumes, pauses, stops int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resumes, h.pauses, h.stops
}

// EmitProgress reports progress through the handle's sink
func (h *FakeHandle) EmitProgress(ev types.ProgressEvent) {
	ev.JobID = h.Job.ID
	h.sink.Progress(ev)
}

// EmitFileReady reports a finished file through the handle's sink
func (h *FakeHandle) EmitFileReady(f types.FileReady) {
	f.JobID = h.Job.ID
	h.sink.FileReady(f)
}

// EmitComplete reports completion through the handle's sink
func (h *FakeHandle) EmitComplete() {
	h.sink.Complete(h.Job.ID)
}
