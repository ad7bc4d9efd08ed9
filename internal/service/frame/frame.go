// Package frame holds the decoded-frame and container abstractions shared by the
// pipeline and the gocv-backed video I/O.
package frame

import (
	"context"
	"fmt"
	"image"
	"math"

	"videocounter/internal/model"
)

// Image is a decoded frame buffer. The holder that received it must Close it.
type Image interface {
	Bounds() image.Rectangle
	Close() error
}

// VideoInfo is the container metadata read when a source is opened.
type VideoInfo struct {
	FPS         float64 `json:"fps"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	TotalFrames int     `json:"total_frames"` // <= 0 when the container does not report it
}

// Validate rejects non-positive dimensions or frame rate.
func (v VideoInfo) Validate() error {
	if v.FPS <= 0 || math.IsNaN(v.FPS) {
		return fmt.Errorf("%w: invalid fps %v", model.ErrSourceCorrupt, v.FPS)
	}
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("%w: invalid frame size %dx%d", model.ErrSourceCorrupt, v.Width, v.Height)
	}
	return nil
}

// FrameCountKnown reports whether TotalFrames can be used for percentages.
func (v VideoInfo) FrameCountKnown() bool {
	return v.TotalFrames > 0
}

// Source yields frames in order. Read returns io.EOF once drained and an error
// wrapping model.ErrFrameDecode when a frame cannot be decoded.
type Source interface {
	Info() VideoInfo
	Read(ctx context.Context) (Image, error)
	Close() error
}

// Muxer appends frames to an output container. Close flushes it.
type Muxer interface {
	Write(img Image) error
	Close() error
}

// Opener opens a source video by path.
type Opener interface {
	Open(path string) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Source, error)

func (f OpenerFunc) Open(path string) (Source, error) { return f(path) }

// MuxerFactory creates an output container matching the source geometry.
type MuxerFactory interface {
	Create(path string, info VideoInfo) (Muxer, error)
}

// MuxerFactoryFunc adapts a function to MuxerFactory.
type MuxerFactoryFunc func(path string, info VideoInfo) (Muxer, error)

func (f MuxerFactoryFunc) Create(path string, info VideoInfo) (Muxer, error) { return f(path, info) }
