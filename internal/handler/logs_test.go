package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"videocounter/internal/config"
	"videocounter/internal/logger"
)

func logRouter(l *logger.Logger) http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/logs/:level", ShowLogsHandler(l))
	router.HandlerFunc(http.MethodPost, "/logs/:level/clear", ClearLogsHandler(l))
	return router
}

func TestLogHandlers(t *testing.T) {
	l, err := logger.NewLogger(&config.Config{LogDirectory: t.TempDir(), LogLevel: "info"})
	require.NoError(t, err)
	defer l.Close()
	l.Warning("disk almost full")
	h := logRouter(l)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/warning", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	require.Contains(t, rec.Body.String(), "disk almost full")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logs/warning/clear", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/warning", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/debug", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShowLogsHandler_NoLogDirectory(t *testing.T) {
	rec := httptest.NewRecorder()
	logRouter(logger.NewNop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
