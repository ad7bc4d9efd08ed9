// Package postprocess turns raw network output tensors into detections:
// tensor decoding, box clipping and per-class non-maximum suppression.
package postprocess

import (
	"fmt"
	"image"
	"math"

	"videocounter/internal/model"
)

// SSDRowSize is the width of one SSD detection row:
// [batch, class, confidence, x1, y1, x2, y2], coordinates normalized to [0,1].
const SSDRowSize = 7

// Request carries the per-call filter and the geometry needed to map network
// coordinates back to frame pixels.
type Request struct {
	Frame     image.Rectangle // Bounds of the source frame
	Classes   map[int]bool    // Allowed COCO ids; nil allows all
	Threshold float64
}

func (r Request) allowed(classID int) bool {
	return r.Classes == nil || r.Classes[classID]
}

// DecodeYOLO decodes a YOLOv8/YOLO11 head laid out as [4+C, N]: for each of the N
// anchors, rows 0-3 hold cx, cy, w, h in input pixels and rows 4.. hold class scores.
// inputSize is the square network input edge the frame was resized to.
func DecodeYOLO(data []float32, channels, anchors, inputSize int, req Request) ([]model.Detection, error) {
	if channels < 5 || anchors <= 0 {
		return nil, fmt.Errorf("unexpected YOLO output shape [%d, %d]", channels, anchors)
	}
	if len(data) < channels*anchors {
		return nil, fmt.Errorf("YOLO output has %d values, want %d", len(data), channels*anchors)
	}

	sx := float64(req.Frame.Dx()) / float64(inputSize)
	sy := float64(req.Frame.Dy()) / float64(inputSize)
	at := func(row, col int) float64 { return float64(data[row*anchors+col]) }

	out := []model.Detection{}
	for i := 0; i < anchors; i++ {
		best, bestScore := -1, 0.0
		for c := 0; c < channels-4; c++ {
			if score := at(4+c, i); best < 0 || score > bestScore {
				best, bestScore = c, score
			}
		}
		if !req.allowed(best) || bestScore < req.Threshold {
			continue
		}

		cx, cy, w, h := at(0, i)*sx, at(1, i)*sy, at(2, i)*sx, at(3, i)*sy
		box, ok := clip(cx-w/2, cy-h/2, cx+w/2, cy+h/2, req.Frame)
		if !ok {
			continue
		}
		out = append(out, model.Detection{
			ClassID:    best,
			Label:      Label(best),
			Confidence: clamp01(bestScore),
			Box:        box,
		})
	}
	return out, nil
}

// DecodeSSD decodes the [1, 1, N, 7] output of the TensorFlow SSD graphs.
func DecodeSSD(data []float32, req Request) ([]model.Detection, error) {
	if len(data)%SSDRowSize != 0 {
		return nil, fmt.Errorf("SSD output length %d is not a multiple of %d", len(data), SSDRowSize)
	}

	fw, fh := float64(req.Frame.Dx()), float64(req.Frame.Dy())
	out := []model.Detection{}
	for row := 0; row+SSDRowSize <= len(data); row += SSDRowSize {
		confidence := float64(data[row+2])
		if confidence < req.Threshold {
			continue
		}
		classID, ok := ssdToCOCO[int(data[row+1])]
		if !ok || !req.allowed(classID) {
			continue
		}
		box, ok := clip(
			float64(data[row+3])*fw, float64(data[row+4])*fh,
			float64(data[row+5])*fw, float64(data[row+6])*fh,
			req.Frame,
		)
		if !ok {
			continue
		}
		out = append(out, model.Detection{
			ClassID:    classID,
			Label:      Label(classID),
			Confidence: clamp01(confidence),
			Box:        box,
		})
	}
	return out, nil
}

// clip rounds a box to pixels and clamps it to the frame. Boxes that collapse
// to nothing are dropped.
func clip(x1, y1, x2, y2 float64, bounds image.Rectangle) (image.Rectangle, bool) {
	if math.IsNaN(x1) || math.IsNaN(y1) || math.IsNaN(x2) || math.IsNaN(y2) {
		return image.Rectangle{}, false
	}
	r := image.Rect(
		int(math.Round(x1)), int(math.Round(y1)),
		int(math.Round(x2)), int(math.Round(y2)),
	).Intersect(bounds)
	if r.Empty() {
		return image.Rectangle{}, false
	}
	return r, true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
