package handler

import (
	"net/http"

	"videocounter/internal/dto"
	"videocounter/internal/logger"
	"videocounter/internal/model"
	"videocounter/internal/service/job"
)

// Version is reported by the index endpoint.
const Version = "1.0.0"

// Readiness reports whether the detection backend loaded its model.
type Readiness interface {
	Ready() bool
}

// HealthHandler reports liveness, whether detection can run and how many
// viewers are connected.
func HealthHandler(orch *job.Orchestrator, detectors Readiness, viewers ViewerCounter, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs := orch.List()
		resp := dto.HealthResponse{
			Status:        "healthy",
			DetectorReady: detectors.Ready(),
			Jobs:          len(jobs),
		}
		for _, j := range jobs {
			resp.Viewers += viewers.GetClientCount(j.ID)
		}
		if !resp.DetectorReady {
			resp.Status = "degraded"
		}
		writeJSON(w, logger, http.StatusOK, resp)
	}
}

// IndexHandler describes the API.
func IndexHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, dto.IndexResponse{
			Message: "Video Object Counter API",
			Version: Version,
			Modes:   []string{model.ModePeople, model.ModeVehicles},
		})
	}
}
