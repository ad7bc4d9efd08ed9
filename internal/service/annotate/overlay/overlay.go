// Package overlay lays out the boxes and counters drawn on an annotated frame.
// It has no OpenCV dependency; the annotate package renders the result.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"videocounter/internal/model"
)

// Text positions and sizes, in pixels at the source resolution.
const (
	HeadlineX     = 10
	HeadlineY     = 30
	ClassLinesY   = 70
	ClassLineStep = 35
	FooterMargin  = 20
	LabelOffset   = 10
)

var (
	Red   = color.RGBA{R: 255, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Font is a Hershey simplex font size and stroke width.
type Font struct {
	Scale     float64
	Thickness int
}

var (
	LabelFont    = Font{Scale: 0.5, Thickness: 2}
	HeadlineFont = Font{Scale: 1, Thickness: 2}
	DetailFont   = Font{Scale: 0.7, Thickness: 2}
)

type Box struct {
	Rect      image.Rectangle
	Color     color.RGBA
	Thickness int
}

type Text struct {
	Text   string
	Origin image.Point // Bottom-left corner of the text
	Color  color.RGBA
	Font   Font
}

// Overlay is everything drawn on one frame, boxes first.
type Overlay struct {
	Boxes []Box
	Texts []Text
}

// Plan lays out one box and label per detection, the total headline, one line
// per catalog class (zeros included) and the frame footer. totalFrames <= 0
// omits the denominator.
func Plan(bounds image.Rectangle, detections []model.Detection, count model.FrameCount, catalog *model.ClassCatalog, totalFrames int) Overlay {
	var o Overlay

	for _, det := range detections {
		label := det.Label
		if class, ok := catalog.Lookup(det.ClassID); ok {
			label = class.Label
		}
		c := catalog.Color(label)
		o.Boxes = append(o.Boxes, Box{Rect: det.Box, Color: c, Thickness: 2})

		origin := image.Pt(det.Box.Min.X, det.Box.Min.Y-LabelOffset)
		if origin.Y < LabelOffset {
			// keep labels of boxes touching the top edge visible
			origin.Y = det.Box.Min.Y + LabelOffset + LabelOffset
		}
		o.Texts = append(o.Texts, Text{
			Text:   fmt.Sprintf("%s %.2f", label, det.Confidence),
			Origin: origin,
			Color:  c,
			Font:   LabelFont,
		})
	}

	o.Texts = append(o.Texts, Text{
		Text:   fmt.Sprintf("Total %s: %d", catalog.Noun(), count.Total),
		Origin: image.Pt(HeadlineX, HeadlineY),
		Color:  Red,
		Font:   HeadlineFont,
	})

	y := ClassLinesY
	for _, class := range catalog.Classes() {
		o.Texts = append(o.Texts, Text{
			Text:   fmt.Sprintf("%s: %d", capitalize(class.Label), count.PerClass[class.Label]),
			Origin: image.Pt(HeadlineX, y),
			Color:  class.Color,
			Font:   DetailFont,
		})
		y += ClassLineStep
	}

	footer := fmt.Sprintf("Frame: %d", count.FrameIndex+1)
	if totalFrames > 0 {
		footer = fmt.Sprintf("Frame: %d/%d", count.FrameIndex+1, totalFrames)
	}
	o.Texts = append(o.Texts, Text{
		Text:   footer,
		Origin: image.Pt(HeadlineX, bounds.Max.Y-FooterMargin),
		Color:  White,
		Font:   DetailFont,
	})
	return o
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
