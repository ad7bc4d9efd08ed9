// Package frametest provides in-memory sources, muxers, detectors and annotators
// for exercising the pipeline without OpenCV or model files.
package frametest

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"

	"videocounter/internal/model"
	"videocounter/internal/service/frame"
)

// Image is a fake frame that tracks whether it was closed.
type Image struct {
	Index  int
	Width  int
	Height int
	closed atomic.Bool
}

func (i *Image) Bounds() image.Rectangle { return image.Rect(0, 0, i.Width, i.Height) }

func (i *Image) Close() error {
	i.closed.Store(true)
	return nil
}

func (i *Image) Closed() bool { return i.closed.Load() }

// Source yields Frames fake frames. FailAt (1-based frame number, 0 disables)
// makes that read return a decode error. Gate, when set, is received from
// before every read so tests can step the run.
type Source struct {
	VideoInfo frame.VideoInfo
	Frames    int
	FailAt    int
	Gate      chan struct{}

	mu     sync.Mutex
	read   int
	images []*Image
	closed bool
}

func (s *Source) Info() frame.VideoInfo { return s.VideoInfo }

func (s *Source) Read(ctx context.Context) (frame.Image, error) {
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.read >= s.Frames {
		return nil, io.EOF
	}
	s.read++
	if s.FailAt > 0 && s.read == s.FailAt {
		return nil, fmt.Errorf("%w: corrupt packet", model.ErrFrameDecode)
	}
	img := &Image{Index: s.read - 1, Width: s.VideoInfo.Width, Height: s.VideoInfo.Height}
	s.images = append(s.images, img)
	return img, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Images returns every frame handed out so far.
func (s *Source) Images() []*Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Image, len(s.images))
	copy(out, s.images)
	return out
}

// Opener returns an opener that hands out src for any path, or err when set.
func Opener(src *Source, err error) frame.Opener {
	return frame.OpenerFunc(func(path string) (frame.Source, error) {
		if err != nil {
			return nil, err
		}
		return src, nil
	})
}

// Muxer records written frames.
type Muxer struct {
	Path     string
	Info     frame.VideoInfo
	WriteErr error

	mu      sync.Mutex
	written int
	closed  bool
}

func (m *Muxer) Write(img frame.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("write after close")
	}
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.written++
	return nil
}

func (m *Muxer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Muxer) Written() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written
}

func (m *Muxer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MuxerFactory creates Muxers and remembers them by path.
type MuxerFactory struct {
	mu     sync.Mutex
	muxers map[string]*Muxer
}

func (f *MuxerFactory) Create(path string, info frame.VideoInfo) (frame.Muxer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.muxers == nil {
		f.muxers = make(map[string]*Muxer)
	}
	m := &Muxer{Path: path, Info: info}
	f.muxers[path] = m
	return m, nil
}

func (f *MuxerFactory) Get(path string) *Muxer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.muxers[path]
}

// Detector returns scripted detections per frame index. Frames without a script
// yield no detections.
type Detector struct {
	PerFrame map[int][]model.Detection
	Err      error

	calls atomic.Int64
}

func (d *Detector) Detect(img frame.Image, classes []int, threshold float64) ([]model.Detection, error) {
	d.calls.Add(1)
	if err := model.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}
	fake, ok := img.(*Image)
	if !ok {
		return []model.Detection{}, nil
	}
	allowed := make(map[int]bool, len(classes))
	for _, id := range classes {
		allowed[id] = true
	}
	out := []model.Detection{}
	for _, det := range d.PerFrame[fake.Index] {
		if allowed[det.ClassID] && det.Confidence >= threshold {
			out = append(out, det)
		}
	}
	return out, nil
}

func (d *Detector) Calls() int { return int(d.calls.Load()) }

// Annotator returns a fresh Image per call, leaving the input untouched. It
// remembers the frame total passed with every call.
type Annotator struct {
	mu     sync.Mutex
	totals []int
}

func (a *Annotator) Annotate(img frame.Image, detections []model.Detection, count model.FrameCount, catalog *model.ClassCatalog, totalFrames int) (frame.Image, error) {
	a.mu.Lock()
	a.totals = append(a.totals, totalFrames)
	a.mu.Unlock()
	b := img.Bounds()
	return &Image{Index: count.FrameIndex, Width: b.Dx(), Height: b.Dy()}, nil
}

func (a *Annotator) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.totals)
}

// Totals returns the totalFrames argument of every call in order.
func (a *Annotator) Totals() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int, len(a.totals))
	copy(out, a.totals)
	return out
}

// Box builds a detection with a valid box.
func Box(classID int, confidence float64) model.Detection {
	return model.Detection{
		ClassID:    classID,
		Confidence: confidence,
		Box:        image.Rect(10, 10, 50, 80),
	}
}
