package dto

import "videocounter/internal/model"

type UploadResponse struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
	Mode     string `json:"mode"`
}

type ProcessResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ErrorResponse keeps the {"detail": ...} shape the web client expects.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// StatusResponse is a job snapshot plus what the server holds around it.
type StatusResponse struct {
	model.Job
	Viewers      int            `json:"viewers"`
	StoredFrames int            `json:"stored_frames"`
	StoredTotals map[string]int `json:"stored_totals,omitempty"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	DetectorReady bool   `json:"detector_ready"`
	Jobs          int    `json:"jobs"`
	Viewers       int    `json:"viewers"`
}

type IndexResponse struct {
	Message string   `json:"message"`
	Version string   `json:"version"`
	Modes   []string `json:"modes"`
}
