// Package job runs video pipelines as observable, asynchronous jobs.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"videocounter/internal/config"
	"videocounter/internal/logger"
	"videocounter/internal/metrics"
	"videocounter/internal/model"
	"videocounter/internal/service/frame"
	"videocounter/internal/service/pipeline"
)

// Percent reported while a run is still going; 100 is reserved for completion.
const maxRunningProgress = 99.0

// Notifier receives a snapshot after every job mutation.
type Notifier interface {
	Publish(snapshot model.Job)
}

// Store keeps uploaded and annotated videos.
type Store interface {
	SaveUpload(jobID, filename string, body io.Reader) (string, int64, error)
	OutputPath(jobID string) string
	Remove(paths ...string) error
}

// Series records the per-frame counts of a run.
type Series interface {
	Add(jobID string, fc model.FrameCount)
	Flush(jobID string) error
	Drop(jobID string) error
}

// Upload describes a video submitted for counting.
type Upload struct {
	Mode      string
	Filename  string
	MediaType string
	Body      io.Reader
}

// StartOptions are the per-run parameters.
type StartOptions struct {
	Confidence float64
	SaveOutput bool
}

// DefaultStartOptions matches the defaults of the HTTP API.
func DefaultStartOptions() StartOptions {
	return StartOptions{Confidence: 0.5, SaveOutput: true}
}

type Deps struct {
	Store     Store
	Series    Series   // optional
	Notifier  Notifier // optional
	Detectors []pipeline.Detector
	Annotator pipeline.Annotator
	Opener    frame.Opener
	Muxers    frame.MuxerFactory
	Metrics   *metrics.Metrics // optional
	Logger    *logger.Logger
}

// entry guards one job record. cancel is set while the job is processing.
// announced is closed once the processing snapshot went out, so run updates
// never overtake it. evicted is set when the janitor dropped the record; a
// caller still holding the entry must treat it as gone.
type entry struct {
	mu        sync.Mutex
	job       model.Job
	ctx       context.Context
	cancel    context.CancelFunc
	announced chan struct{}
	evicted   bool
}

// transition moves the job to status and reports whether that was allowed.
// Callers hold e.mu.
func (e *entry) transition(to model.JobStatus) bool {
	if e.evicted || !e.job.Status.CanTransition(to) {
		return false
	}
	e.job.Status = to
	return true
}

// snapshot bumps the version and returns a copy. Callers hold e.mu.
func (e *entry) snapshot(now time.Time) model.Job {
	e.job.Version++
	e.job.UpdatedAt = now
	return e.job.Clone()
}

// Orchestrator owns every job record and runs started jobs on a fixed pool of
// workers, one detector each.
type Orchestrator struct {
	deps      Deps
	retention time.Duration
	interval  time.Duration

	jobs map[string]*entry
	mu   sync.RWMutex

	// qmu guards closing the queue; it is taken after an entry lock, never before.
	qmu     sync.Mutex
	queue   chan *entry
	stopped bool

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	now func() time.Time
}

// NewOrchestrator starts one worker per detector.
func NewOrchestrator(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if len(deps.Detectors) == 0 {
		return nil, errors.New("at least one detector is required")
	}
	if deps.Store == nil || deps.Annotator == nil || deps.Opener == nil {
		return nil, errors.New("store, annotator and opener are required")
	}
	if deps.Series == nil {
		deps.Series = nopSeries{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	queueSize := cfg.QueueSize
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		deps:      deps,
		retention: cfg.JobRetention,
		interval:  cfg.JanitorInterval,
		jobs:      make(map[string]*entry),
		queue:     make(chan *entry, queueSize),
		ctx:       ctx,
		stop:      stop,
		now:       time.Now,
	}

	for i, det := range deps.Detectors {
		o.wg.Add(1)
		go o.worker(i, det)
	}
	o.deps.Logger.Info("Orchestrator started with %d workers, queue size %d", len(deps.Detectors), queueSize)
	return o, nil
}

// Create stores an upload and registers a job in the uploaded state.
func (o *Orchestrator) Create(ctx context.Context, up Upload) (model.Job, error) {
	if _, err := model.CatalogForMode(up.Mode); err != nil {
		return model.Job{}, err
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(up.MediaType)), "video/") {
		return model.Job{}, fmt.Errorf("%w, got %q", model.ErrInvalidMedia, up.MediaType)
	}
	if up.Body == nil {
		return model.Job{}, fmt.Errorf("%w: empty upload", model.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return model.Job{}, err
	}

	id := uuid.NewString()
	path, size, err := o.deps.Store.SaveUpload(id, up.Filename, up.Body)
	if err != nil {
		return model.Job{}, fmt.Errorf("failed to save upload: %w", err)
	}

	now := o.now()
	e := &entry{
		announced: make(chan struct{}),
		job: model.Job{
			ID:         id,
			Mode:       up.Mode,
			Filename:   up.Filename,
			Status:     model.StatusUploaded,
			UploadPath: path,
			CreatedAt:  now,
			UpdatedAt:  now,
			Version:    1,
		},
	}

	o.mu.Lock()
	o.jobs[id] = e
	o.mu.Unlock()

	if o.deps.Metrics != nil {
		o.deps.Metrics.JobsCreated.WithLabelValues(up.Mode).Inc()
	}
	o.deps.Logger.Info("Job %s created: %s (%s, %d bytes)", id, up.Filename, up.Mode, size)
	return e.job.Clone(), nil
}

func (o *Orchestrator) lookup(id string) (*entry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", model.ErrNotFound, id)
	}
	return e, nil
}

// Start moves an uploaded job to processing and queues its run. The job is
// left untouched when it is not uploaded or when no worker slot is free.
func (o *Orchestrator) Start(id string, opts StartOptions) (model.Job, error) {
	e, err := o.lookup(id)
	if err != nil {
		return model.Job{}, err
	}
	if err := model.ValidateThreshold(opts.Confidence); err != nil {
		return model.Job{}, err
	}
	return o.start(e, opts)
}

// start runs Start on an entry that was looked up earlier and may have been
// evicted since.
func (o *Orchestrator) start(e *entry, opts StartOptions) (model.Job, error) {
	e.mu.Lock()
	id := e.job.ID
	if e.evicted {
		e.mu.Unlock()
		return model.Job{}, fmt.Errorf("%w: job %s", model.ErrNotFound, id)
	}
	if !e.job.Status.CanTransition(model.StatusProcessing) {
		status := e.job.Status
		e.mu.Unlock()
		return model.Job{}, fmt.Errorf("%w: job %s is %s", model.ErrAlreadyProcessing, id, status)
	}

	// Queued under the entry lock so a concurrent Start cannot queue it twice.
	if err := o.enqueue(e); err != nil {
		e.mu.Unlock()
		return model.Job{}, err
	}

	now := o.now()
	e.ctx, e.cancel = context.WithCancel(o.ctx)
	e.transition(model.StatusProcessing)
	e.job.Confidence = opts.Confidence
	e.job.SaveOutput = opts.SaveOutput
	if opts.SaveOutput {
		e.job.OutputPath = o.deps.Store.OutputPath(id)
	}
	e.job.StartedAt = &now
	snap := e.snapshot(now)
	e.mu.Unlock()

	o.deps.Logger.Info("Job %s started (confidence %.2f, save output %t)", id, opts.Confidence, opts.SaveOutput)
	o.deps.Notifier.Publish(snap)
	close(e.announced)
	return snap, nil
}

func (o *Orchestrator) enqueue(e *entry) error {
	o.qmu.Lock()
	defer o.qmu.Unlock()
	if o.stopped {
		return fmt.Errorf("%w: shutting down", model.ErrQueueFull)
	}
	select {
	case o.queue <- e:
		if o.deps.Metrics != nil {
			o.deps.Metrics.QueuedRuns.Add(1)
		}
		return nil
	default:
		return model.ErrQueueFull
	}
}

// worker executes queued runs with its own detector.
func (o *Orchestrator) worker(workerID int, det pipeline.Detector) {
	defer o.wg.Done()

	o.deps.Logger.Info("Processing worker %d started", workerID)
	for e := range o.queue {
		if o.deps.Metrics != nil {
			o.deps.Metrics.QueuedRuns.Add(-1)
		}
		o.execute(e, det)
	}
	o.deps.Logger.Info("Processing worker %d stopped", workerID)
}

func (o *Orchestrator) execute(e *entry, det pipeline.Detector) {
	<-e.announced
	e.mu.Lock()
	if e.job.Status != model.StatusProcessing {
		e.mu.Unlock()
		return
	}
	job := e.job.Clone()
	ctx := e.ctx
	e.mu.Unlock()

	if o.deps.Metrics != nil {
		o.deps.Metrics.ActiveRuns.Add(1)
		defer o.deps.Metrics.ActiveRuns.Add(-1)
	}

	catalog, err := model.CatalogForMode(job.Mode)
	if err != nil {
		o.finish(e, model.RunSummary{}, err)
		return
	}

	log := o.deps.Logger.With("job", job.ID)
	p := pipeline.New(pipeline.Config{
		SourcePath: job.UploadPath,
		OutputPath: job.OutputPath,
		SaveOutput: job.SaveOutput,
		Confidence: job.Confidence,
		Catalog:    catalog,
	}, pipeline.Deps{
		Opener:    o.deps.Opener,
		Muxers:    o.deps.Muxers,
		Detector:  det,
		Annotator: o.deps.Annotator,
		Logger:    log,
	})

	var (
		summary model.RunSummary
		runErr  error
	)
	updates := make(chan pipeline.Progress)
	go func() {
		defer close(updates)
		summary, runErr = p.Run(ctx, updates)
	}()
	for u := range updates {
		o.progress(e, job.Mode, u)
	}

	info := p.Info()
	log.Info("Pipeline %s on %dx%d @ %.2ffps source", p.State(), info.Width, info.Height, info.FPS)
	o.finish(e, summary, runErr)
}

// progress applies one frame report to the job and pushes the snapshot.
func (o *Orchestrator) progress(e *entry, mode string, u pipeline.Progress) {
	e.mu.Lock()
	if e.job.Status != model.StatusProcessing {
		e.mu.Unlock()
		return
	}
	j := &e.job
	j.CurrentFrame = u.Current
	j.TotalFrames = u.Total
	if pct, ok := u.Percent(); ok {
		j.ProgressIndeterminate = false
		j.Progress = max(j.Progress, min(pct, maxRunningProgress))
	} else {
		j.ProgressIndeterminate = true
	}
	fc := u.Count.Clone()
	j.LastFrameCount = &fc
	j.DetectedCount = u.Count.Total
	snap := e.snapshot(o.now())
	e.mu.Unlock()

	o.deps.Series.Add(snap.ID, u.Count)
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveFrame(mode, u.Count.PerClass, u.Elapsed)
	}
	o.deps.Notifier.Publish(snap)
}

// finish moves the job to its terminal state exactly once.
func (o *Orchestrator) finish(e *entry, summary model.RunSummary, runErr error) {
	to := model.StatusCompleted
	if runErr != nil {
		to = model.StatusFailed
	}

	e.mu.Lock()
	if !e.job.Status.CanTransition(to) {
		e.mu.Unlock()
		return
	}
	id := e.job.ID
	e.mu.Unlock()

	if err := o.deps.Series.Flush(id); err != nil {
		o.deps.Logger.Error("Job %s: failed to save frame counts: %v", id, err)
	}

	e.mu.Lock()
	if !e.transition(to) {
		e.mu.Unlock()
		return
	}
	now := o.now()
	j := &e.job
	j.FinishedAt = &now
	if runErr == nil {
		j.Progress = 100
		j.ProgressIndeterminate = false
		s := summary.Clone()
		j.Summary = &s
		j.DetectedCount = summary.TotalDetected
	} else {
		j.Error = runErr.Error()
	}
	if e.cancel != nil {
		e.cancel()
	}
	snap := e.snapshot(now)
	e.mu.Unlock()

	if runErr == nil {
		o.deps.Logger.Info("Job %s completed: %d frames, %d detections", id, summary.FramesProcessed, summary.TotalDetected)
		if o.deps.Metrics != nil {
			o.deps.Metrics.JobsCompleted.WithLabelValues(snap.Mode).Inc()
		}
	} else {
		o.deps.Logger.Error("Job %s failed: %v", id, runErr)
		if o.deps.Metrics != nil {
			o.deps.Metrics.JobsFailed.WithLabelValues(snap.Mode).Inc()
		}
	}
	o.deps.Notifier.Publish(snap)
}

// Status returns a consistent snapshot of a job.
func (o *Orchestrator) Status(id string) (model.Job, error) {
	e, err := o.lookup(id)
	if err != nil {
		return model.Job{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// Result returns the summary of a completed job.
func (o *Orchestrator) Result(id string) (model.RunSummary, error) {
	job, err := o.Status(id)
	if err != nil {
		return model.RunSummary{}, err
	}
	if job.Status != model.StatusCompleted || job.Summary == nil {
		return model.RunSummary{}, fmt.Errorf("%w: job %s is %s", model.ErrNotReady, id, job.Status)
	}
	return *job.Summary, nil
}

// Artifact returns the annotated video of a completed job.
func (o *Orchestrator) Artifact(id string) (string, error) {
	job, err := o.Status(id)
	if err != nil {
		return "", err
	}
	if job.Status != model.StatusCompleted {
		return "", fmt.Errorf("%w: job %s is %s", model.ErrNotReady, id, job.Status)
	}
	if job.Summary == nil || job.Summary.OutputVideoPath == "" {
		return "", fmt.Errorf("%w: job %s has no output video", model.ErrNotFound, id)
	}
	return job.Summary.OutputVideoPath, nil
}

// Cancel aborts a job. A processing run stops at its next frame boundary; an
// uploaded job fails immediately; terminal jobs are left as they are.
func (o *Orchestrator) Cancel(id string) (model.Job, error) {
	e, err := o.lookup(id)
	if err != nil {
		return model.Job{}, err
	}

	e.mu.Lock()
	if e.evicted {
		e.mu.Unlock()
		return model.Job{}, fmt.Errorf("%w: job %s", model.ErrNotFound, id)
	}
	switch {
	case e.job.Status == model.StatusProcessing:
		e.cancel()
		snap := e.job.Clone()
		e.mu.Unlock()
		o.deps.Logger.Info("Job %s cancellation requested", id)
		return snap, nil

	case e.transition(model.StatusFailed):
		now := o.now()
		e.job.Error = model.ErrCancelled.Error()
		e.job.FinishedAt = &now
		snap := e.snapshot(now)
		e.mu.Unlock()
		o.deps.Logger.Info("Job %s cancelled before start", id)
		if o.deps.Metrics != nil {
			o.deps.Metrics.JobsFailed.WithLabelValues(snap.Mode).Inc()
		}
		o.deps.Notifier.Publish(snap)
		return snap, nil
	}

	snap := e.job.Clone()
	e.mu.Unlock()
	return snap, nil
}

// List returns snapshots of every job, oldest first.
func (o *Orchestrator) List() []model.Job {
	o.mu.RLock()
	entries := make([]*entry, 0, len(o.jobs))
	for _, e := range o.jobs {
		entries = append(entries, e)
	}
	o.mu.RUnlock()

	jobs := make([]model.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		jobs = append(jobs, e.job.Clone())
		e.mu.Unlock()
	}
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
	return jobs
}

// Run evicts expired jobs every JanitorInterval until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	interval := o.interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.Evict(); n > 0 {
				o.deps.Logger.Info("Evicted %d expired jobs", n)
			}
		}
	}
}

// Evict removes terminal jobs, and uploads never started, whose last update is
// older than the retention window. Their files and stored counts go with them.
func (o *Orchestrator) Evict() int {
	if o.retention <= 0 {
		return 0
	}
	cutoff := o.now().Add(-o.retention)

	var expired []model.Job
	o.mu.Lock()
	for id, e := range o.jobs {
		e.mu.Lock()
		stale := e.job.Status != model.StatusProcessing && e.job.UpdatedAt.Before(cutoff)
		if stale {
			e.evicted = true
			expired = append(expired, e.job.Clone())
			delete(o.jobs, id)
		}
		e.mu.Unlock()
	}
	o.mu.Unlock()

	for _, job := range expired {
		if err := o.deps.Store.Remove(job.UploadPath, job.OutputPath); err != nil {
			o.deps.Logger.Warning("Job %s: failed to remove files: %v", job.ID, err)
		}
		if err := o.deps.Series.Drop(job.ID); err != nil {
			o.deps.Logger.Warning("Job %s: failed to drop frame counts: %v", job.ID, err)
		}
		if o.deps.Metrics != nil {
			o.deps.Metrics.JobsEvicted.Inc()
		}
	}
	return len(expired)
}

// Shutdown aborts running jobs, stops accepting new runs and waits for the
// workers to exit or ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.qmu.Lock()
	if !o.stopped {
		o.stopped = true
		close(o.queue)
	}
	o.qmu.Unlock()
	o.stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.deps.Logger.Info("All processing workers stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type nopSeries struct{}

func (nopSeries) Add(string, model.FrameCount) {}
func (nopSeries) Flush(string) error { return nil }
func (nopSeries) Drop(string) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Publish(model.Job) {}
