package route

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"

	"videocounter/internal/config"
	"videocounter/internal/handler"
	"videocounter/internal/logger"
	"videocounter/internal/metrics"
	"videocounter/internal/middleware"
	"videocounter/internal/service/job"
	"videocounter/internal/service/websocket"
)

// Services are the long-lived components the HTTP surface talks to.
type Services struct {
	Orchestrator *job.Orchestrator
	Hub          *websocket.HubService
	Series       handler.SeriesReader
	Detectors    handler.Readiness
	Metrics      *metrics.Metrics
}

// SetupRoutes registers the per-mode job API, the progress socket, health,
// metrics and log endpoints, and wraps the router with the CORS middleware.
func SetupRoutes(svc Services, cfg *config.Config, logger *logger.Logger) http.Handler {
	router := httprouter.New()
	orch := svc.Orchestrator

	upload := http.Handler(handler.UploadHandler(orch, cfg, logger))
	if cfg.UploadRateLimit > 0 {
		upload = httprate.Limit(cfg.UploadRateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))(upload)
	}

	// Job API, one set per counting mode
	router.Handler(http.MethodPost, "/api/:mode/upload", upload)
	router.HandlerFunc(http.MethodPost, "/api/:mode/process/:job_id", handler.ProcessHandler(orch, cfg, logger))
	router.HandlerFunc(http.MethodGet, "/api/:mode/status/:job_id", handler.StatusHandler(orch, svc.Series, svc.Hub, logger))
	router.HandlerFunc(http.MethodGet, "/api/:mode/results/:job_id", handler.ResultsHandler(orch, logger))
	router.HandlerFunc(http.MethodGet, "/api/:mode/download/video/:job_id", handler.DownloadVideoHandler(orch, logger))
	router.HandlerFunc(http.MethodGet, "/api/:mode/download/csv/:job_id", handler.DownloadCSVHandler(orch, svc.Series, logger))
	router.HandlerFunc(http.MethodPost, "/api/:mode/cancel/:job_id", handler.CancelHandler(orch, logger))

	router.HandlerFunc(http.MethodGet, "/ws/:job_id", handler.JobWebsocketHandler(orch, svc.Hub, logger))

	router.HandlerFunc(http.MethodGet, "/", handler.IndexHandler(logger))
	router.HandlerFunc(http.MethodGet, "/health", handler.HealthHandler(orch, svc.Detectors, svc.Hub, logger))
	if svc.Metrics != nil {
		router.Handler(http.MethodGet, "/metrics", svc.Metrics.Handler())
	}

	// Log endpoints
	router.HandlerFunc(http.MethodGet, "/logs/:level", handler.ShowLogsHandler(logger))
	router.HandlerFunc(http.MethodPost, "/logs/:level/clear", handler.ClearLogsHandler(logger))

	return middleware.CORSMiddleware(cfg.CORSOrigins, router)
}
