package services

import (
	"context"
	"fmt"
	"sort"
	"streamspace/engine"
	"streamspace/store"
	"streamspace/types"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	defaultEventBuffer    = 256
	defaultRehydrateLimit = 4
)

// Notifier is the part of the progress hub the orchestrator drives
type Notifier interface {
	RegisterAlias(alias, id string)
	Publish(target string, msg types.ProgressMessage)
}

// Indexer ingests files of finished jobs into the media catalog
type Indexer interface {
	OnFileReady(ctx context.Context, f types.FileReady) error
}

// Orchestrator owns the engine handles of active jobs. Start, Pause, Cancel
// and OnComplete may be called concurrently from request goroutines and from
// the engine event loop.
type Orchestrator interface {
	Start(ctx context.Context, job types.Job)
	StartAllPending(ctx context.Context)
	Pause(id string) error
	Cancel(ctx context.Context, id string) error
	OnComplete(ctx context.Context, id string)
	State(id string) types.JobState
	Handles() []string
	Run(ctx context.Context)
}

// entry is the registry record of one job id
type entry struct {
	handle    engine.Handle
	job       types.Job
	paused    bool
	persisted bool
	// most recent engine progress, reused for the completion message
	last types.ProgressEvent
}

// orchestrator keeps at most one engine handle per job id
type orchestrator struct {
	mu      sync.RWMutex
	entries map[string]*entry
	flight  singleflight.Group

	factory     engine.Factory
	jobs        store.JobStore
	notifier    Notifier
	indexer     Indexer
	descriptors *DescriptorStore

	events         chan engine.Event
	done           chan struct{}
	stopOnce       sync.Once
	rehydrateLimit int
	logger         zerolog.Logger
}

// OrchestratorOption configures an orchestrator
type OrchestratorOption func(*orchestrator)

// WithIndexer sets the catalog that receives finished files
func WithIndexer(ix Indexer) OrchestratorOption {
	return func(o *orchestrator) { o.indexer = ix }
}

// WithDescriptorStore removes stored descriptors once their job ends
func WithDescriptorStore(d *DescriptorStore) OrchestratorOption {
	return func(o *orchestrator) { o.descriptors = d }
}

// WithEventBuffer sets the size of the engine event queue
func WithEventBuffer(n int) OrchestratorOption {
	return func(o *orchestrator) {
		if n > 0 {
			o.events = make(chan engine.Event, n)
		}
	}
}

// WithRehydrateLimit bounds how many pending jobs start in parallel
func WithRehydrateLimit(n int) OrchestratorOption {
	return func(o *orchestrator) {
		if n > 0 {
			o.rehydrateLimit = n
		}
	}
}

// WithOrchestratorLogger sets the orchestrator's logger
func WithOrchestratorLogger(l zerolog.Logger) OrchestratorOption {
	return func(o *orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator. Run must be started for engine
// progress to reach the notifier.
func NewOrchestrator(factory engine.Factory, jobs store.JobStore, notifier Notifier, opts ...OrchestratorOption) Orchestrator {
	o := &orchestrator{
		entries:        make(map[string]*entry),
		factory:        factory,
		jobs:           jobs,
		notifier:       notifier,
		events:         make(chan engine.Event, defaultEventBuffer),
		done:           make(chan struct{}),
		rehydrateLimit: defaultRehydrateLimit,
		logger:         log.Logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start resumes the job's handle, building it first if none exists. The job
// is saved when the store does not have it yet, once per handle; a failed
// save is retried by the next Start. Engine errors are logged, never
// returned; the job stays startable.
func (o *orchestrator) Start(ctx context.Context, job types.Job) {
	logger := o.logger.With().Str("job_id", job.ID).Logger()

	h, created, err := o.acquire(job)
	if err != nil {
		logger.Error().Err(fmt.Errorf("%w: %v", types.ErrTransientEngine, err)).Msg("failed to create engine handle")
		return
	}

	if err := h.Resume(); err != nil {
		logger.Error().Err(fmt.Errorf("%w: %v", types.ErrTransientEngine, err)).Msg("failed to resume engine")
		if created {
			o.discard(job.ID, h)
		}
		return
	}
	o.setPaused(job.ID, false)

	if o.notifier != nil {
		o.notifier.RegisterAlias(job.DisplayName, job.ID)
	}

	if !created {
		logger.Debug().Msg("resumed existing engine handle")
	}
	o.persist(ctx, job, logger)
}

// persist saves the job unless the store already has it. Concurrent callers
// share one check so the record is written at most once per handle.
func (o *orchestrator) persist(ctx context.Context, job types.Job, logger zerolog.Logger) {
	if o.isPersisted(job.ID) {
		return
	}

	_, _, _ = o.flight.Do("persist:"+job.ID, func() (interface{}, error) {
		if o.isPersisted(job.ID) {
			return nil, nil
		}
		exists, err := o.jobs.ExistsByID(ctx, job.ID)
		if err != nil {
			logger.Error().Err(err).Msg("failed to check persisted job")
			return nil, err
		}
		if !exists {
			if err := o.jobs.Save(ctx, job); err != nil {
				logger.Error().Err(err).Msg("failed to persist job")
				return nil, err
			}
			logger.Info().Str("name", job.DisplayName).Msg("download started")
		} else {
			logger.Info().Msg("download resumed from store")
		}
		o.markPersisted(job.ID)
		return nil, nil
	})
}

// acquire returns the handle for job.ID, building it if absent. Concurrent
// callers for the same unseen id share one build; created is true only for
// the caller whose build ran.
func (o *orchestrator) acquire(job types.Job) (h engine.Handle, created bool, err error) {
	if h, ok := o.lookup(job.ID); ok {
		return h, false, nil
	}

	v, err, _ := o.flight.Do(job.ID, func() (interface{}, error) {
		if h, ok := o.lookup(job.ID); ok {
			return h, nil
		}
		h, err := o.factory.New(job, &eventSink{events: o.events, done: o.done, logger: o.logger})
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		o.entries[job.ID] = &entry{handle: h, job: job}
		o.mu.Unlock()
		created = true
		return h, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(engine.Handle), created, nil
}

// discard drops a handle that never started so a later Start rebuilds it
func (o *orchestrator) discard(id string, h engine.Handle) {
	o.remove(id, h)
	if err := h.Stop(); err != nil {
		o.logger.Warn().Err(err).Str("job_id", id).Msg("failed to stop discarded engine handle")
	}
}

// StartAllPending starts every persisted job, used to rehydrate after a restart
func (o *orchestrator) StartAllPending(ctx context.Context) {
	jobs, err := o.jobs.FindAll(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("failed to load pending downloads")
		return
	}
	if len(jobs) == 0 {
		o.logger.Info().Msg("no pending downloads")
		return
	}

	o.logger.Info().Int("count", len(jobs)).Msg("starting background downloads")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.rehydrateLimit)
	for _, job := range jobs {
		g.Go(func() error {
			o.Start(gctx, job)
			return nil
		})
	}
	_ = g.Wait()
}

// Pause pauses the job's engine and keeps its record
func (o *orchestrator) Pause(id string) error {
	h, ok := o.lookup(id)
	if !ok {
		return fmt.Errorf("pause %s: %w", id, types.ErrJobNotFound)
	}
	if err := h.Pause(); err != nil {
		return fmt.Errorf("pause %s: %w", id, err)
	}
	o.setPaused(id, true)
	o.logger.Info().Str("job_id", id).Msg("download paused")
	return nil
}

// Cancel pauses the engine, deletes the job record and forgets the handle.
// The id may be started again afterwards as a new job.
func (o *orchestrator) Cancel(ctx context.Context, id string) error {
	h, ok := o.lookup(id)
	if !ok {
		return fmt.Errorf("cancel %s: %w", id, types.ErrJobNotFound)
	}
	if err := h.Pause(); err != nil {
		o.logger.Warn().Err(err).Str("job_id", id).Msg("failed to pause cancelled download")
	}
	o.forget(ctx, id, o.descriptorRef(id))
	o.remove(id, h)
	// release engine resources so the id can be added again from scratch
	if err := h.Stop(); err != nil {
		o.logger.Warn().Err(err).Str("job_id", id).Msg("failed to stop cancelled download")
	}
	o.logger.Info().Str("job_id", id).Msg("download cancelled")
	return nil
}

// OnComplete deletes the job record, stops the engine if it is still active
// and forgets the handle. Calling it again for the same id does nothing
// beyond the (idempotent) record deletion.
func (o *orchestrator) OnComplete(ctx context.Context, id string) {
	o.mu.Lock()
	e, ok := o.entries[id]
	if ok {
		delete(o.entries, id)
	}
	o.mu.Unlock()

	if !ok {
		o.forget(ctx, id, "")
		return
	}
	o.forget(ctx, id, e.job.DescriptorRef)

	h := e.handle
	if h.IsActive() {
		if err := h.Stop(); err != nil {
			o.logger.Warn().Err(err).Str("job_id", id).Msg("failed to stop engine")
		} else {
			o.logger.Info().Str("job_id", id).Msg("engine stopped")
		}
	}
	o.logger.Info().Str("job_id", id).Msg("download completed")
}

// State reports the observable state of a job id
func (o *orchestrator) State(id string) types.JobState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[id]
	if !ok {
		return types.JobStateAbsent
	}
	if e.paused {
		return types.JobStatePaused
	}
	return types.JobStateRunning
}

// Handles returns the ids that currently have an engine handle, sorted
func (o *orchestrator) Handles() []string {
	o.mu.RLock()
	ids := make([]string, 0, len(o.entries))
	for id := range o.entries {
		ids = append(ids, id)
	}
	o.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Run consumes engine events until ctx is cancelled. Events still pending
// at that point are discarded.
func (o *orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			o.stopOnce.Do(func() { close(o.done) })
			return
		case ev := <-o.events:
			o.handle(ctx, ev)
		}
	}
}

func (o *orchestrator) handle(ctx context.Context, ev engine.Event) {
	switch ev.Kind {
	case engine.EventProgress:
		o.recordProgress(ev.JobID, ev.Progress)
		o.publish(ev.Progress)
	case engine.EventFileReady:
		if o.indexer == nil {
			return
		}
		if err := o.indexer.OnFileReady(ctx, ev.File); err != nil {
			o.logger.Error().Err(err).Str("job_id", ev.JobID).Str("path", ev.File.Path).Msg("failed to index file")
		}
	case engine.EventComplete:
		final := o.finalEvent(ev.JobID)
		o.OnComplete(ctx, ev.JobID)
		o.publish(final)
	}
}

// finalEvent is the last reported progress of id marked complete, so the
// closing message still carries transfer stats.
func (o *orchestrator) finalEvent(id string) types.ProgressEvent {
	o.mu.RLock()
	var final types.ProgressEvent
	if e, ok := o.entries[id]; ok {
		final = e.last
	}
	o.mu.RUnlock()

	final.JobID = id
	final.Percent = 100
	final.ETA = 0
	final.Complete = true
	return final
}

func (o *orchestrator) publish(ev types.ProgressEvent) {
	if o.notifier == nil {
		return
	}
	o.notifier.Publish(ev.JobID, types.NewProgressMessage(ev))
}

func (o *orchestrator) lookup(id string) (engine.Handle, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[id]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

func (o *orchestrator) descriptorRef(id string) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if e, ok := o.entries[id]; ok {
		return e.job.DescriptorRef
	}
	return ""
}

func (o *orchestrator) recordProgress(id string, ev types.ProgressEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[id]; ok {
		e.last = ev
	}
}

func (o *orchestrator) isPersisted(id string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[id]
	return ok && e.persisted
}

func (o *orchestrator) markPersisted(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[id]; ok {
		e.persisted = true
	}
}

func (o *orchestrator) setPaused(id string, paused bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[id]; ok {
		e.paused = paused
	}
}

// remove forgets h only if it is still the registered handle for id
func (o *orchestrator) remove(id string, h engine.Handle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[id]; ok && e.handle == h {
		delete(o.entries, id)
	}
}

// forget deletes the persisted job and its stored descriptor
func (o *orchestrator) forget(ctx context.Context, id, descriptorRef string) {
	if err := o.jobs.DeleteByID(ctx, id); err != nil {
		o.logger.Error().Err(err).Str("job_id", id).Msg("failed to delete persisted job")
	}

	if descriptorRef != "" && o.descriptors != nil {
		if err := o.descriptors.Remove(descriptorRef); err != nil {
			o.logger.Warn().Err(err).Str("job_id", id).Msg("failed to remove descriptor")
		}
	}
}

// eventSink turns engine callbacks into queued events. Progress is dropped
// when the queue is full; completion and finished files are handed off on a
// separate goroutine so they are never lost while Run is consuming and never
// block the engine. Once done is closed the hand-off gives up.
type eventSink struct {
	events chan<- engine.Event
	done   <-chan struct{}
	logger zerolog.Logger
}

func (s *eventSink) Progress(ev types.ProgressEvent) {
	select {
	case s.events <- engine.Event{Kind: engine.EventProgress, JobID: ev.JobID, Progress: ev}:
	default:
		s.logger.Debug().Str("job_id", ev.JobID).Msg("event queue full, dropping progress")
	}
}

func (s *eventSink) FileReady(f types.FileReady) {
	go s.deliver(engine.Event{Kind: engine.EventFileReady, JobID: f.JobID, File: f})
}

func (s *eventSink) Complete(jobID string) {
	go s.deliver(engine.Event{Kind: engine.EventComplete, JobID: jobID})
}

func (s *eventSink) deliver(ev engine.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
		s.logger.Debug().Str("job_id", ev.JobID).Str("kind", ev.Kind.String()).Msg("event loop stopped, dropping event")
	}
}
