// Package annotate renders detection boxes and running counters onto frames.
package annotate

import (
	"fmt"

	"gocv.io/x/gocv"

	"videocounter/internal/model"
	"videocounter/internal/service/annotate/overlay"
	"videocounter/internal/service/frame"
	"videocounter/internal/service/video"
)

// Annotator draws on a copy of each frame; the input frame is left untouched.
type Annotator struct{}

func NewAnnotator() *Annotator {
	return &Annotator{}
}

// Annotate returns a new frame with the overlay drawn. The caller owns it.
func (a *Annotator) Annotate(img frame.Image, detections []model.Detection, count model.FrameCount, catalog *model.ClassCatalog, totalFrames int) (frame.Image, error) {
	src, err := video.AsMat(img)
	if err != nil {
		return nil, err
	}

	mat := src.Clone()
	o := overlay.Plan(img.Bounds(), detections, count, catalog, totalFrames)
	if err := draw(&mat, o); err != nil {
		mat.Close()
		return nil, err
	}
	return video.NewMatImage(mat), nil
}

func draw(mat *gocv.Mat, o overlay.Overlay) error {
	for _, box := range o.Boxes {
		if err := gocv.Rectangle(mat, box.Rect, box.Color, box.Thickness); err != nil {
			return fmt.Errorf("failed to draw rectangle: %w", err)
		}
	}
	for _, text := range o.Texts {
		if err := gocv.PutText(mat, text.Text, text.Origin, gocv.FontHersheySimplex, text.Font.Scale, text.Color, text.Font.Thickness); err != nil {
			return fmt.Errorf("failed to draw text: %w", err)
		}
	}
	return nil
}
