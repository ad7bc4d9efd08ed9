package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.JobsCreated.WithLabelValues("vehicles").Inc()
	m.ObserveFrame("vehicles", map[string]int{"car": 2, "bus": 0}, 20*time.Millisecond)
	m.ActiveRuns.Add(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	require.Contains(t, text, `videocounter_jobs_created_total{mode="vehicles"} 1`)
	require.Contains(t, text, `videocounter_frames_processed_total{mode="vehicles"} 1`)
	require.Contains(t, text, `videocounter_detections_total{label="car"} 2`)
	require.False(t, strings.Contains(text, `label="bus"`), "zero counts are not recorded")
	require.Contains(t, text, "videocounter_active_runs 1")
	require.Contains(t, text, "videocounter_frame_seconds_count 1")
}
