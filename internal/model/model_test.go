package model

import (
	"errors"
	"fmt"
	"image"
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// ==========================================
// Catalog
// ==========================================

func TestCatalogForMode(t *testing.T) {
	people, err := CatalogForMode(ModePeople)
	require.NoError(t, err)
	require.Equal(t, []int{0}, people.IDs())
	require.Equal(t, "People", people.Noun())

	vehicles, err := CatalogForMode(ModeVehicles)
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 5, 7}, vehicles.IDs())
	require.Equal(t, []string{"car", "motorcycle", "bus", "truck"}, vehicles.Labels())

	_, err = CatalogForMode("animals")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewClassCatalog_RejectsDuplicates(t *testing.T) {
	_, err := NewClassCatalog("x", "X", []ClassInfo{{ID: 1, Label: "a"}, {ID: 1, Label: "b"}})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewClassCatalog("x", "X", []ClassInfo{{ID: 1, Label: "a"}, {ID: 2, Label: "a"}})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewClassCatalog("x", "X", nil)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCatalog_Lookup(t *testing.T) {
	class, ok := VehicleCatalog.Lookup(7)
	require.True(t, ok)
	require.Equal(t, "truck", class.Label)

	_, ok = VehicleCatalog.Lookup(0)
	require.False(t, ok)

	require.Equal(t, uint8(255), VehicleCatalog.Color("unknown").G)
	require.Equal(t, map[string]int{"person": 0}, PeopleCatalog.ZeroCounts())
}

// ==========================================
// Detection
// ==========================================

func TestValidateThreshold(t *testing.T) {
	for _, ok := range []float64{0, 0.25, 0.5, 1} {
		require.NoError(t, ValidateThreshold(ok), "threshold %v", ok)
	}
	for _, bad := range []float64{-0.01, 1.5, math.NaN(), math.Inf(1)} {
		require.ErrorIs(t, ValidateThreshold(bad), ErrInvalidInput, "threshold %v", bad)
	}
}

func TestDetection_Validate(t *testing.T) {
	good := Detection{ClassID: 0, Label: "person", Confidence: 0.7, Box: image.Rect(1, 2, 30, 40)}
	require.NoError(t, good.Validate())

	flat := good
	flat.Box = image.Rect(5, 5, 5, 20)
	require.ErrorIs(t, flat.Validate(), ErrInvalidInput)

	over := good
	over.Confidence = 1.2
	require.ErrorIs(t, over.Validate(), ErrInvalidInput)

	nan := good
	nan.Confidence = math.NaN()
	require.ErrorIs(t, nan.Validate(), ErrInvalidInput)
}

// ==========================================
// Job
// ==========================================

func TestJobStatus_Transitions(t *testing.T) {
	require.True(t, StatusUploaded.CanTransition(StatusProcessing))
	require.True(t, StatusUploaded.CanTransition(StatusFailed))
	require.True(t, StatusProcessing.CanTransition(StatusCompleted))
	require.True(t, StatusProcessing.CanTransition(StatusFailed))

	require.False(t, StatusUploaded.CanTransition(StatusCompleted))
	require.False(t, StatusProcessing.CanTransition(StatusUploaded))
	for _, terminal := range []JobStatus{StatusCompleted, StatusFailed} {
		require.True(t, terminal.Terminal())
		for _, to := range []JobStatus{StatusUploaded, StatusProcessing, StatusCompleted, StatusFailed} {
			require.False(t, terminal.CanTransition(to))
		}
	}
}

func TestJob_CloneIsDeep(t *testing.T) {
	j := Job{
		ID:             "a",
		LastFrameCount: &FrameCount{PerClass: map[string]int{"car": 1}, Total: 1},
		Summary:        &RunSummary{PerClassBreakdown: map[string]int{"car": 3}},
	}
	c := j.Clone()
	c.LastFrameCount.PerClass["car"] = 9
	c.Summary.PerClassBreakdown["car"] = 9
	require.Equal(t, 1, j.LastFrameCount.PerClass["car"])
	require.Equal(t, 3, j.Summary.PerClassBreakdown["car"])
}

// ==========================================
// Errors
// ==========================================

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		nil:                                        http.StatusOK,
		ErrInvalidMedia:                            http.StatusBadRequest,
		fmt.Errorf("%w: png", ErrInvalidMedia):     http.StatusBadRequest,
		fmt.Errorf("wrap: %w", ErrInvalidInput):    http.StatusBadRequest,
		ErrNotFound:                                http.StatusNotFound,
		ErrAlreadyProcessing:                       http.StatusConflict,
		ErrNotReady:                                http.StatusTooEarly,
		ErrQueueFull:                               http.StatusServiceUnavailable,
		fmt.Errorf("x: %w", ErrSourceUnavailable):  http.StatusUnprocessableEntity,
		errors.New("boom"):                         http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, HTTPStatus(err), "error %v", err)
	}
}
