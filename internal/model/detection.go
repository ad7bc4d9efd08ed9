package model

import (
	"fmt"
	"image"
	"math"
)

// Detection is one localized, classified object found in a single frame.
// Box is in pixel coordinates: Min is (x1, y1), Max is (x2, y2).
type Detection struct {
	ClassID    int             `json:"class_id"`
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// Validate checks the confidence range and box orientation.
func (d Detection) Validate() error {
	if d.Confidence < 0 || d.Confidence > 1 || math.IsNaN(d.Confidence) {
		return fmt.Errorf("%w: confidence %.3f outside [0,1]", ErrInvalidInput, d.Confidence)
	}
	if d.Box.Min.X >= d.Box.Max.X || d.Box.Min.Y >= d.Box.Max.Y {
		return fmt.Errorf("%w: degenerate box %v", ErrInvalidInput, d.Box)
	}
	return nil
}

// ValidateThreshold rejects confidence thresholds outside [0,1].
func ValidateThreshold(threshold float64) error {
	if threshold < 0 || threshold > 1 || math.IsNaN(threshold) {
		return fmt.Errorf("%w: confidence threshold %v outside [0,1]", ErrInvalidInput, threshold)
	}
	return nil
}
