package handler

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"videocounter/internal/config"
	"videocounter/internal/dto"
	"videocounter/internal/logger"
	"videocounter/internal/model"
	"videocounter/internal/service/job"
	"videocounter/internal/service/storage"
)

// Multipart parts above this size are spooled to disk by net/http.
const multipartMemory = 32 << 20

// SeriesReader returns the stored per-frame counts of a job.
type SeriesReader interface {
	Series(jobID string) ([]model.FrameCount, error)
	Stored(jobID string) (storage.StoredSeries, error)
}

// ViewerCounter reports how many progress viewers follow a job.
type ViewerCounter interface {
	GetClientCount(jobID string) int
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, logger *logger.Logger, err error) {
	status := model.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed: %v", err)
	}
	writeJSON(w, logger, status, dto.ErrorResponse{Detail: err.Error()})
}

// routeMode returns the counting mode named in the route.
func routeMode(r *http.Request) (string, error) {
	mode := httprouter.ParamsFromContext(r.Context()).ByName("mode")
	if _, err := model.CatalogForMode(mode); err != nil {
		return "", fmt.Errorf("%w: no route for mode %q", model.ErrNotFound, mode)
	}
	return mode, nil
}

// routeJob resolves the job named in the route. A job created under another
// mode is reported as missing.
func routeJob(orch *job.Orchestrator, r *http.Request) (model.Job, error) {
	mode, err := routeMode(r)
	if err != nil {
		return model.Job{}, err
	}
	id := httprouter.ParamsFromContext(r.Context()).ByName("job_id")
	j, err := orch.Status(id)
	if err != nil {
		return model.Job{}, err
	}
	if j.Mode != mode {
		return model.Job{}, fmt.Errorf("%w: job %s", model.ErrNotFound, id)
	}
	return j, nil
}

// UploadHandler stores a multipart "file" upload as a new job.
func UploadHandler(orch *job.Orchestrator, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, err := routeMode(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		// room for the multipart framing around the file
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes()+1<<20)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, logger, http.StatusRequestEntityTooLarge, dto.ErrorResponse{Detail: "upload too large"})
				return
			}
			writeError(w, logger, fmt.Errorf("%w: %v", model.ErrInvalidInput, err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, logger, fmt.Errorf("%w: missing file field: %v", model.ErrInvalidInput, err))
			return
		}
		defer file.Close()

		created, err := orch.Create(r.Context(), job.Upload{
			Mode:      mode,
			Filename:  header.Filename,
			MediaType: header.Header.Get("Content-Type"),
			Body:      file,
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, dto.UploadResponse{JobID: created.ID, Filename: created.Filename, Mode: created.Mode})
	}
}

// ProcessHandler starts counting an uploaded job.
func ProcessHandler(orch *job.Orchestrator, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := routeJob(orch, r)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		var req dto.ProcessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, logger, fmt.Errorf("%w: malformed body: %v", model.ErrInvalidInput, err))
			return
		}
		confidence, saveOutput := req.Resolve(cfg.DefaultConfidence)

		started, err := orch.Start(j.ID, job.StartOptions{Confidence: confidence, SaveOutput: saveOutput})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, dto.ProcessResponse{JobID: started.ID, Status: string(started.Status)})
	}
}

// StatusHandler returns the current job snapshot with its viewer count and
// the frames stored for it so far.
func StatusHandler(orch *job.Orchestrator, series SeriesReader, viewers ViewerCounter, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := routeJob(orch, r)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		stored, err := series.Stored(j.ID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, dto.StatusResponse{
			Job:          j,
			Viewers:      viewers.GetClientCount(j.ID),
			StoredFrames: stored.Frames,
			StoredTotals: stored.Totals,
		})
	}
}

// ResultsHandler returns the run summary of a completed job.
func ResultsHandler(orch *job.Orchestrator, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := routeJob(orch, r)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		summary, err := orch.Result(j.ID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, summary)
	}
}

// DownloadVideoHandler serves the annotated video of a completed job.
func DownloadVideoHandler(orch *job.Orchestrator, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := routeJob(orch, r)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		path, err := orch.Artifact(j.ID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if !storage.Exists(path) {
			writeError(w, logger, fmt.Errorf("%w: output video missing", model.ErrNotFound))
			return
		}

		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_counted_%s.mp4"`, j.Mode, j.ID))
		http.ServeFile(w, r, path)
	}
}

// DownloadCSVHandler writes the per-frame counts of a completed job, one row per
// frame with a column per class.
func DownloadCSVHandler(orch *job.Orchestrator, series SeriesReader, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := routeJob(orch, r)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if _, err := orch.Result(j.ID); err != nil {
			writeError(w, logger, err)
			return
		}
		catalog, err := model.CatalogForMode(j.Mode)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		counts, err := series.Series(j.ID)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		labels := catalog.Labels()
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_counts_%s.csv"`, j.Mode, j.ID))

		out := csv.NewWriter(w)
		out.Write(append([]string{"frame", "total"}, labels...))
		for _, fc := range counts {
			row := make([]string, 0, len(labels)+2)
			row = append(row, strconv.Itoa(fc.FrameIndex), strconv.Itoa(fc.Total))
			for _, label := range labels {
				row = append(row, strconv.Itoa(fc.PerClass[label]))
			}
			out.Write(row)
		}
		out.Flush()
		if err := out.Error(); err != nil {
			logger.Error("Error writing CSV for job %s: %v", j.ID, err)
		}
	}
}

// CancelHandler aborts a job.
func CancelHandler(orch *job.Orchestrator, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := routeJob(orch, r)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		snapshot, err := orch.Cancel(j.ID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, snapshot)
	}
}
