// Package video reads and writes video containers through OpenCV.
package video

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"videocounter/internal/model"
	"videocounter/internal/service/frame"
)

// Codec is the fourcc used for annotated output.
const Codec = "mp4v"

// MatImage is a decoded frame held in an OpenCV matrix.
type MatImage struct {
	mat gocv.Mat
}

// NewMatImage takes ownership of mat.
func NewMatImage(mat gocv.Mat) *MatImage {
	return &MatImage{mat: mat}
}

// Mat exposes the underlying matrix. It stays owned by the MatImage.
func (m *MatImage) Mat() gocv.Mat { return m.mat }

func (m *MatImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.mat.Cols(), m.mat.Rows())
}

func (m *MatImage) Close() error { return m.mat.Close() }

// AsMat returns the matrix behind a frame produced by this package.
func AsMat(img frame.Image) (gocv.Mat, error) {
	mi, ok := img.(*MatImage)
	if !ok {
		return gocv.Mat{}, fmt.Errorf("%w: frame of type %T is not backed by a gocv.Mat", model.ErrInvalidInput, img)
	}
	if mi.mat.Empty() {
		return gocv.Mat{}, fmt.Errorf("%w: empty frame", model.ErrFrameDecode)
	}
	return mi.mat, nil
}

// FileSource reads frames from a video file.
type FileSource struct {
	path string
	cap  *gocv.VideoCapture
	info frame.VideoInfo
	read int
}

// OpenFile opens a video file and reads its container metadata.
func OpenFile(path string) (*FileSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
	}

	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrSourceUnavailable, path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: could not open video %s", model.ErrSourceUnavailable, path)
	}

	info := frame.VideoInfo{
		FPS:         capture.Get(gocv.VideoCaptureFPS),
		Width:       int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:      int(capture.Get(gocv.VideoCaptureFrameHeight)),
		TotalFrames: int(capture.Get(gocv.VideoCaptureFrameCount)),
	}
	if err := info.Validate(); err != nil {
		capture.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &FileSource{path: path, cap: capture, info: info}, nil
}

// Opener opens file sources for the pipeline.
var Opener = frame.OpenerFunc(func(path string) (frame.Source, error) {
	src, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	return src, nil
})

func (s *FileSource) Info() frame.VideoInfo { return s.info }

// Read decodes the next frame. A read that yields nothing is the end of the
// stream; a read that claims success but yields an empty matrix is corrupt.
func (s *FileSource) Read(ctx context.Context) (frame.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat := gocv.NewMat()
	if ok := s.cap.Read(&mat); !ok {
		mat.Close()
		return nil, io.EOF
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: empty frame %d in %s", model.ErrFrameDecode, s.read+1, s.path)
	}
	s.read++
	return NewMatImage(mat), nil
}

func (s *FileSource) Close() error {
	return s.cap.Close()
}

// Writer encodes annotated frames into an mp4 container.
type Writer struct {
	path string
	size image.Point
	w    *gocv.VideoWriter
}

// NewWriter creates the output file, with the source's frame rate and size.
func NewWriter(path string, info frame.VideoInfo) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	w, err := gocv.VideoWriterFile(path, Codec, info.FPS, info.Width, info.Height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open video writer %s: %w", path, err)
	}
	if !w.IsOpened() {
		w.Close()
		return nil, fmt.Errorf("video writer for %s did not open", path)
	}
	return &Writer{path: path, size: image.Pt(info.Width, info.Height), w: w}, nil
}

// Muxers creates Writers for the pipeline.
var Muxers = frame.MuxerFactoryFunc(func(path string, info frame.VideoInfo) (frame.Muxer, error) {
	w, err := NewWriter(path, info)
	if err != nil {
		return nil, err
	}
	return w, nil
})

func (w *Writer) Write(img frame.Image) error {
	mat, err := AsMat(img)
	if err != nil {
		return err
	}
	if got := image.Pt(mat.Cols(), mat.Rows()); got != w.size {
		return fmt.Errorf("frame size %v does not match output size %v", got, w.size)
	}
	return w.w.Write(mat)
}

// Close flushes and finalizes the container.
func (w *Writer) Close() error {
	return w.w.Close()
}
