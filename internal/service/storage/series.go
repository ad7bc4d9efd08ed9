package storage

import (
	"context"
	"sync"
	"time"

	"videocounter/internal/config"
	"videocounter/internal/logger"
	"videocounter/internal/model"
	"videocounter/internal/repository"
)

// SeriesBuffer buffers per-frame counts in memory and flushes them to the
// repository in batches, when a job's buffer is full and periodically.
// Flushes of one job are serialized: once Flush returns, every count added
// before the call is stored.
type SeriesBuffer struct {
	repo     repository.FrameCountRepository
	limit    int
	interval time.Duration
	pending  map[string][]model.FrameCount
	flushing map[string]*sync.Mutex
	mu       sync.Mutex
	logger   *logger.Logger
}

// StoredSeries summarizes what the repository holds for a job.
type StoredSeries struct {
	Frames int
	Totals map[string]int
}

// NewSeriesBuffer creates a SeriesBuffer writing to repo.
func NewSeriesBuffer(cfg *config.Config, logger *logger.Logger, repo repository.FrameCountRepository) *SeriesBuffer {
	limit := cfg.SeriesFlushSize
	if limit <= 0 {
		limit = 1
	}
	return &SeriesBuffer{
		repo:     repo,
		limit:    limit,
		interval: cfg.SeriesFlushInterval,
		pending:  make(map[string][]model.FrameCount),
		flushing: make(map[string]*sync.Mutex),
		logger:   logger,
	}
}

// Run starts a ticker loop that periodically flushes every job until ctx ends,
// then flushes once more.
func (s *SeriesBuffer) Run(ctx context.Context) {
	if s.interval <= 0 {
		<-ctx.Done()
		s.FlushAll()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.FlushAll()
			return
		case <-ticker.C:
			s.FlushAll()
		}
	}
}

// Add appends one frame count to the job's buffer and flushes it when full.
func (s *SeriesBuffer) Add(jobID string, fc model.FrameCount) {
	s.mu.Lock()
	s.pending[jobID] = append(s.pending[jobID], fc.Clone())
	full := len(s.pending[jobID]) >= s.limit
	s.mu.Unlock()

	if full {
		if err := s.Flush(jobID); err != nil {
			s.logger.Error("Error saving frame counts of job %s: %v", jobID, err)
		}
	}
}

// take removes and returns the pending batch of a job.
func (s *SeriesBuffer) take(jobID string) []model.FrameCount {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.pending[jobID]
	delete(s.pending, jobID)
	return batch
}

// jobLock returns the mutex serializing flushes of a job.
func (s *SeriesBuffer) jobLock(jobID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.flushing[jobID]
	if !ok {
		l = &sync.Mutex{}
		s.flushing[jobID] = l
	}
	return l
}

// Flush writes the job's buffered counts to the repository. It waits for a
// flush of the same job that is already in flight.
func (s *SeriesBuffer) Flush(jobID string) error {
	l := s.jobLock(jobID)
	l.Lock()
	defer l.Unlock()

	batch := s.take(jobID)
	if len(batch) == 0 {
		return nil
	}
	if err := s.repo.InsertBatch(jobID, batch); err != nil {
		return err
	}
	return nil
}

// FlushAll writes every buffered job.
func (s *SeriesBuffer) FlushAll() {
	s.mu.Lock()
	jobs := make([]string, 0, len(s.pending))
	for id := range s.pending {
		jobs = append(jobs, id)
	}
	s.mu.Unlock()

	saved := 0
	for _, id := range jobs {
		if err := s.Flush(id); err != nil {
			s.logger.Error("Error saving frame counts of job %s: %v", id, err)
			continue
		}
		saved++
	}
	if saved > 0 {
		s.logger.Info("Flushed frame counts of %d jobs", saved)
	}
}

// Series flushes the job and returns its full time-series in frame order.
func (s *SeriesBuffer) Series(jobID string) ([]model.FrameCount, error) {
	if err := s.Flush(jobID); err != nil {
		return nil, err
	}
	return s.repo.GetByJobID(jobID)
}

// Stored flushes the job and reports how many frames and detections per
// class the repository holds for it.
func (s *SeriesBuffer) Stored(jobID string) (StoredSeries, error) {
	if err := s.Flush(jobID); err != nil {
		return StoredSeries{}, err
	}
	n, err := s.repo.CountFrames(jobID)
	if err != nil {
		return StoredSeries{}, err
	}
	totals, err := s.repo.GetClassTotals(jobID)
	if err != nil {
		return StoredSeries{}, err
	}
	return StoredSeries{Frames: n, Totals: totals}, nil
}

// Drop discards buffered and stored counts of a job.
func (s *SeriesBuffer) Drop(jobID string) error {
	l := s.jobLock(jobID)
	l.Lock()
	defer l.Unlock()

	s.take(jobID)
	err := s.repo.DeleteByJobID(jobID)

	s.mu.Lock()
	delete(s.flushing, jobID)
	s.mu.Unlock()
	return err
}
