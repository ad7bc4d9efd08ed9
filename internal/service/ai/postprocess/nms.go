package postprocess

import (
	"image"
	"sort"

	flatbush "github.com/bmharper/flatbush-go"

	"videocounter/internal/model"
)

// DefaultIoUThreshold is the overlap above which two boxes of the same class
// are considered the same object.
const DefaultIoUThreshold = 0.45

// IoU is the intersection over union of two boxes.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := area(inter)
	union := area(a) + area(b) - ia
	if union <= 0 {
		return 0
	}
	return float64(ia) / float64(union)
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

// Valid keeps the detections that pass model.Detection.Validate, in order.
func Valid(dets []model.Detection) []model.Detection {
	out := make([]model.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Validate() == nil {
			out = append(out, d)
		}
	}
	return out
}

// NMS performs greedy per-class non-maximum suppression. Detections are visited
// by descending confidence; every lower-scoring box of the same class that
// overlaps a kept box by more than iouThreshold is dropped. The result is
// ordered by descending confidence.
func NMS(dets []model.Detection, iouThreshold float64) []model.Detection {
	if len(dets) == 0 {
		return []model.Detection{}
	}

	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dets[order[a]].Confidence > dets[order[b]].Confidence
	})

	// Spatial index to avoid O(N^2) comparisons
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(dets))
	for _, d := range dets {
		fb.Add(int32(d.Box.Min.X), int32(d.Box.Min.Y), int32(d.Box.Max.X), int32(d.Box.Max.Y))
	}
	fb.Finish()

	suppressed := make([]bool, len(dets))
	kept := make([]model.Detection, 0, len(dets))
	for _, i := range order {
		if suppressed[i] {
			continue
		}
		kept = append(kept, dets[i])
		b := dets[i].Box
		for _, j := range fb.Search(int32(b.Min.X), int32(b.Min.Y), int32(b.Max.X), int32(b.Max.Y)) {
			if j == i || suppressed[j] || dets[j].ClassID != dets[i].ClassID {
				continue
			}
			if IoU(b, dets[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
