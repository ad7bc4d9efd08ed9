package model

import "time"

type JobStatus string

const (
	StatusUploaded   JobStatus = "uploaded"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is absorbing.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition encodes uploaded -> processing -> {completed, failed}.
// An uploaded job may also fail directly when it is cancelled before it starts.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case StatusUploaded:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Job is the observable unit of work tracking one video's processing lifecycle.
// Values handed out by the orchestrator are snapshots; mutating them has no effect.
type Job struct {
	ID       string    `json:"job_id"`
	Mode     string    `json:"mode"`
	Filename string    `json:"filename"`
	Status   JobStatus `json:"status"`

	Progress              float64     `json:"progress"`
	ProgressIndeterminate bool        `json:"progress_indeterminate"`
	CurrentFrame          int         `json:"current_frame"`
	TotalFrames           int         `json:"total_frames"`
	LastFrameCount        *FrameCount `json:"last_frame_count,omitempty"`
	DetectedCount         int         `json:"detected_count"`

	Summary *RunSummary `json:"results,omitempty"`
	Error   string      `json:"error,omitempty"`

	Confidence float64 `json:"confidence"`
	SaveOutput bool    `json:"save_output"`
	UploadPath string  `json:"-"`
	OutputPath string  `json:"output_path,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Version increases on every mutation and orders snapshots.
	Version uint64 `json:"version"`
}

// Clone returns a deep copy of the job.
func (j Job) Clone() Job {
	out := j
	if j.LastFrameCount != nil {
		fc := j.LastFrameCount.Clone()
		out.LastFrameCount = &fc
	}
	if j.Summary != nil {
		s := j.Summary.Clone()
		out.Summary = &s
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
