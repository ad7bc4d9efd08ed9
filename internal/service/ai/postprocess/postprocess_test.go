package postprocess

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"videocounter/internal/model"
)

// yoloTensor builds a [4+classes, len(anchors)] output from per-anchor values.
func yoloTensor(classes int, anchors [][]float32) []float32 {
	channels := 4 + classes
	data := make([]float32, channels*len(anchors))
	for i, a := range anchors {
		for c := 0; c < channels; c++ {
			data[c*len(anchors)+i] = a[c]
		}
	}
	return data
}

func anchor(cx, cy, w, h float32, classes int, scores map[int]float32) []float32 {
	a := make([]float32, 4+classes)
	a[0], a[1], a[2], a[3] = cx, cy, w, h
	for c, s := range scores {
		a[4+c] = s
	}
	return a
}

func TestDecodeYOLO_ScalesToFrame(t *testing.T) {
	// 640x640 input, 1280x720 frame
	data := yoloTensor(8, [][]float32{
		anchor(320, 320, 64, 64, 8, map[int]float32{2: 0.9}),
		anchor(100, 100, 20, 20, 8, map[int]float32{7: 0.3}),
		anchor(500, 500, 40, 40, 8, map[int]float32{4: 0.95}),
	})
	req := Request{
		Frame:     image.Rect(0, 0, 1280, 720),
		Classes:   map[int]bool{2: true, 3: true, 5: true, 7: true},
		Threshold: 0.5,
	}

	dets, err := DecodeYOLO(data, 12, 3, 640, req)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Equal(t, 2, dets[0].ClassID)
	require.Equal(t, "car", dets[0].Label)
	require.InDelta(t, 0.9, dets[0].Confidence, 1e-6)
	require.Equal(t, image.Rect(576, 324, 704, 396), dets[0].Box)
}

func TestDecodeYOLO_ClipsAndDropsDegenerate(t *testing.T) {
	data := yoloTensor(1, [][]float32{
		anchor(0, 0, 100, 100, 1, map[int]float32{0: 0.8}),
		anchor(-200, -200, 10, 10, 1, map[int]float32{0: 0.8}),
	})
	req := Request{Frame: image.Rect(0, 0, 640, 640), Threshold: 0.5}

	dets, err := DecodeYOLO(data, 5, 2, 640, req)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Equal(t, image.Rect(0, 0, 50, 50), dets[0].Box)
	require.NoError(t, dets[0].Validate())
}

func TestDecodeYOLO_EmptyIsNotNil(t *testing.T) {
	data := yoloTensor(1, [][]float32{anchor(10, 10, 5, 5, 1, map[int]float32{0: 0.1})})
	dets, err := DecodeYOLO(data, 5, 1, 640, Request{Frame: image.Rect(0, 0, 640, 640), Threshold: 0.5})
	require.NoError(t, err)
	require.NotNil(t, dets)
	require.Empty(t, dets)
}

func TestDecodeYOLO_BadShape(t *testing.T) {
	_, err := DecodeYOLO(make([]float32, 10), 84, 8400, 640, Request{Frame: image.Rect(0, 0, 1, 1)})
	require.Error(t, err)
	_, err = DecodeYOLO(nil, 3, 1, 640, Request{})
	require.Error(t, err)
}

func TestDecodeSSD_MapsClassIDs(t *testing.T) {
	data := []float32{
		0, 1, 0.9, 0.1, 0.1, 0.2, 0.3, // person
		0, 8, 0.7, 0.5, 0.5, 0.9, 0.9, // truck
		0, 3, 0.2, 0.0, 0.0, 0.5, 0.5, // car below threshold
		0, 18, 0.9, 0.0, 0.0, 0.5, 0.5, // dog
	}
	req := Request{
		Frame:     image.Rect(0, 0, 1000, 500),
		Classes:   map[int]bool{0: true, 7: true},
		Threshold: 0.5,
	}
	dets, err := DecodeSSD(data, req)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	require.Equal(t, 0, dets[0].ClassID)
	require.Equal(t, image.Rect(100, 50, 200, 150), dets[0].Box)
	require.Equal(t, 7, dets[1].ClassID)
	require.Equal(t, "truck", dets[1].Label)

	_, err = DecodeSSD(make([]float32, 8), req)
	require.Error(t, err)
}

func TestSSDToCOCO_Covers80Classes(t *testing.T) {
	require.Len(t, ssdToCOCO, len(COCOClasses))
	require.Equal(t, 0, ssdToCOCO[1])
	require.Equal(t, 11, ssdToCOCO[13])
	require.Equal(t, 79, ssdToCOCO[90])
}

func TestIoU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	require.InDelta(t, 1.0, IoU(a, a), 1e-9)
	require.Zero(t, IoU(a, image.Rect(10, 10, 20, 20)))
	require.InDelta(t, 25.0/175.0, IoU(a, image.Rect(5, 5, 15, 15)), 1e-9)
}

func TestNMS_PerClass(t *testing.T) {
	dets := []model.Detection{
		{ClassID: 2, Confidence: 0.6, Box: image.Rect(0, 0, 100, 100)},
		{ClassID: 2, Confidence: 0.9, Box: image.Rect(5, 5, 105, 105)},
		{ClassID: 7, Confidence: 0.8, Box: image.Rect(0, 0, 100, 100)},
		{ClassID: 2, Confidence: 0.7, Box: image.Rect(300, 300, 400, 400)},
	}
	kept := NMS(dets, DefaultIoUThreshold)
	require.Len(t, kept, 3)
	require.InDelta(t, 0.9, kept[0].Confidence, 1e-9)
	require.Equal(t, 7, kept[1].ClassID)
	require.Equal(t, image.Rect(300, 300, 400, 400), kept[2].Box)
}

func TestValid_DropsMalformedBeforeSuppression(t *testing.T) {
	dets := []model.Detection{
		{ClassID: 2, Confidence: 0.8, Box: image.Rect(0, 0, 100, 100)},
		{ClassID: 2, Confidence: math.NaN(), Box: image.Rect(0, 0, 100, 100)},
		{ClassID: 2, Confidence: 1.7, Box: image.Rect(2, 2, 100, 100)},
		{ClassID: 7, Confidence: 0.9, Box: image.Rect(50, 50, 50, 90)},
		{ClassID: 0, Confidence: 0.6, Box: image.Rect(200, 200, 240, 300)},
	}
	valid := Valid(dets)
	require.Len(t, valid, 2)
	require.Equal(t, 2, valid[0].ClassID)
	require.Equal(t, 0, valid[1].ClassID)

	// an out-of-range score would otherwise suppress the real box
	kept := NMS(valid, DefaultIoUThreshold)
	require.Len(t, kept, 2)
	require.InDelta(t, 0.8, kept[0].Confidence, 1e-9)

	require.NotNil(t, Valid(nil))
}

func TestNMS_Empty(t *testing.T) {
	require.NotNil(t, NMS(nil, DefaultIoUThreshold))
}
