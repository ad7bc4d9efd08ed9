package model

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput is returned for bad thresholds, modes or payloads, before any resource is touched.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidMedia is returned when an upload is not declared as video content.
	ErrInvalidMedia = fmt.Errorf("%w: media type must be video/*", ErrInvalidInput)
	// ErrNotFound is returned for unknown job ids or missing artifacts.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyProcessing is returned when a job is started twice.
	ErrAlreadyProcessing = errors.New("job already processing")
	// ErrSourceUnavailable is returned when the source video cannot be opened.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceCorrupt is returned when the source metadata cannot be determined.
	ErrSourceCorrupt = errors.New("source corrupt")
	// ErrFrameDecode is returned when a frame fails to decode mid-run.
	ErrFrameDecode = errors.New("frame decode error")
	// ErrNotReady is returned when a result is requested before completion.
	ErrNotReady = errors.New("job not completed yet")
	// ErrCancelled marks runs aborted by an explicit cancellation request.
	ErrCancelled = errors.New("job cancelled")
	// ErrQueueFull is returned when no worker slot is available for a new run.
	ErrQueueFull = errors.New("processing queue full")
)

// HTTPStatus maps an error from the taxonomy above to a response code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyProcessing):
		return http.StatusConflict
	case errors.Is(err, ErrNotReady):
		return http.StatusTooEarly
	case errors.Is(err, ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrSourceUnavailable), errors.Is(err, ErrSourceCorrupt):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
