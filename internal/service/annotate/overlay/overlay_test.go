package overlay

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"

	"videocounter/internal/model"
)

func texts(o Overlay) []string {
	out := make([]string, len(o.Texts))
	for i, t := range o.Texts {
		out[i] = t.Text
	}
	return out
}

func TestPlan_Vehicles(t *testing.T) {
	bounds := image.Rect(0, 0, 1280, 720)
	dets := []model.Detection{
		{ClassID: 2, Label: "car", Confidence: 0.91, Box: image.Rect(100, 200, 300, 400)},
		{ClassID: 7, Label: "truck", Confidence: 0.5, Box: image.Rect(500, 5, 700, 300)},
	}
	count := model.FrameCount{FrameIndex: 41, PerClass: map[string]int{"car": 1, "motorcycle": 0, "bus": 0, "truck": 1}, Total: 2}

	o := Plan(bounds, dets, count, model.VehicleCatalog, 900)

	require.Len(t, o.Boxes, 2)
	require.Equal(t, model.VehicleCatalog.Color("car"), o.Boxes[0].Color)
	require.Equal(t, model.VehicleCatalog.Color("truck"), o.Boxes[1].Color)

	require.Equal(t, []string{
		"car 0.91",
		"truck 0.50",
		"Total Vehicles: 2",
		"Car: 1",
		"Motorcycle: 0",
		"Bus: 0",
		"Truck: 1",
		"Frame: 42/900",
	}, texts(o))

	require.Equal(t, image.Pt(100, 190), o.Texts[0].Origin)
	require.Greater(t, o.Texts[1].Origin.Y, 5, "label of a box at the top edge moves inside")
	require.Equal(t, image.Pt(10, 30), o.Texts[2].Origin)
	require.Equal(t, image.Pt(10, 70), o.Texts[3].Origin)
	require.Equal(t, image.Pt(10, 175), o.Texts[6].Origin)
	require.Equal(t, image.Pt(10, 700), o.Texts[7].Origin)
}

func TestPlan_EmptyDetectionsDrawsZeroCounters(t *testing.T) {
	count := model.FrameCount{FrameIndex: 0, PerClass: model.PeopleCatalog.ZeroCounts()}
	o := Plan(image.Rect(0, 0, 640, 480), nil, count, model.PeopleCatalog, 0)

	require.Empty(t, o.Boxes)
	require.Equal(t, []string{"Total People: 0", "Person: 0", "Frame: 1"}, texts(o))
}
