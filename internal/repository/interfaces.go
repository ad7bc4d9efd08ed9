package repository

import (
	"videocounter/internal/model"
)

// FrameCountRepository stores the per-frame count time-series of jobs.
type FrameCountRepository interface {
	// Create operations
	InsertBatch(jobID string, counts []model.FrameCount) error

	// Read operations
	GetByJobID(jobID string) ([]model.FrameCount, error)
	GetClassTotals(jobID string) (map[string]int, error)
	CountFrames(jobID string) (int, error)

	// Delete operations
	DeleteByJobID(jobID string) error
}
