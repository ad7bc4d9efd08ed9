package counting

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"

	"videocounter/internal/model"
)

func det(classID int) model.Detection {
	return model.Detection{ClassID: classID, Confidence: 0.9, Box: image.Rect(0, 0, 10, 10)}
}

func TestAggregator_VehicleRun(t *testing.T) {
	agg := NewAggregator(model.VehicleCatalog)

	fc, err := agg.Observe([]model.Detection{det(2), det(2)})
	require.NoError(t, err)
	require.Equal(t, 0, fc.FrameIndex)
	require.Equal(t, 2, fc.Total)
	require.Equal(t, map[string]int{"car": 2, "motorcycle": 0, "bus": 0, "truck": 0}, fc.PerClass)

	fc, err = agg.Observe(nil)
	require.NoError(t, err)
	require.Equal(t, 1, fc.FrameIndex)
	require.Zero(t, fc.Total)

	fc, err = agg.Observe([]model.Detection{det(7)})
	require.NoError(t, err)
	require.Equal(t, 2, fc.FrameIndex)
	require.Equal(t, 1, fc.PerClass["truck"])

	summary := agg.Finalize()
	require.Equal(t, 3, summary.FramesProcessed)
	require.Equal(t, 3, summary.TotalDetected)
	require.Equal(t, 2, summary.MaxDetected)
	require.InDelta(t, 1.0, summary.AvgDetected, 1e-9)
	require.Equal(t, map[string]int{"car": 2, "motorcycle": 0, "bus": 0, "truck": 1}, summary.PerClassBreakdown)
}

func TestAggregator_FrameTotalEqualsClassSum(t *testing.T) {
	agg := NewAggregator(model.VehicleCatalog)
	fc, err := agg.Observe([]model.Detection{det(2), det(3), det(5), det(7), det(7)})
	require.NoError(t, err)

	sum := 0
	for _, n := range fc.PerClass {
		sum += n
	}
	require.Equal(t, fc.Total, sum)
	require.Equal(t, 5, fc.Total)
}

func TestAggregator_IgnoresForeignClasses(t *testing.T) {
	agg := NewAggregator(model.PeopleCatalog)
	fc, err := agg.Observe([]model.Detection{det(0), det(2), det(16)})
	require.NoError(t, err)
	require.Equal(t, 1, fc.Total)
	require.Equal(t, map[string]int{"person": 1}, fc.PerClass)
	require.Equal(t, 2, agg.Ignored())
}

func TestAggregator_EmptyRun(t *testing.T) {
	agg := NewAggregator(model.PeopleCatalog)
	summary := agg.Finalize()
	require.Zero(t, summary.FramesProcessed)
	require.Zero(t, summary.TotalDetected)
	require.Zero(t, summary.MaxDetected)
	require.Zero(t, summary.AvgDetected)
	require.Equal(t, map[string]int{"person": 0}, summary.PerClassBreakdown)
}

func TestAggregator_FinalizeIsStable(t *testing.T) {
	agg := NewAggregator(model.PeopleCatalog)
	for i := 0; i < 4; i++ {
		_, err := agg.Observe([]model.Detection{det(0)})
		require.NoError(t, err)
	}
	agg.SetOutputPath("outputs/x_output.mp4")

	first := agg.Finalize()
	first.PerClassBreakdown["person"] = 999

	second := agg.Finalize()
	require.Equal(t, 4, second.PerClassBreakdown["person"], "returned summaries must not alias internal state")
	require.Equal(t, "outputs/x_output.mp4", second.OutputVideoPath)

	_, err := agg.Observe([]model.Detection{det(0)})
	require.ErrorIs(t, err, ErrFinalized)
	require.Equal(t, 4, agg.FramesObserved())

	agg.SetOutputPath("elsewhere.mp4")
	require.Equal(t, "outputs/x_output.mp4", agg.Finalize().OutputVideoPath)
}

func TestAggregator_FrameCountsAreIndependent(t *testing.T) {
	agg := NewAggregator(model.VehicleCatalog)
	a, _ := agg.Observe([]model.Detection{det(2)})
	a.PerClass["car"] = 50
	b, _ := agg.Observe([]model.Detection{det(2)})
	require.Equal(t, 1, b.PerClass["car"])
	require.Equal(t, 2, agg.Finalize().PerClassBreakdown["car"])
}
