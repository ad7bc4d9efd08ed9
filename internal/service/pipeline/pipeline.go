// Package pipeline drives one frame-by-frame run over a source video:
// read, detect, count, annotate and optionally re-encode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"videocounter/internal/logger"
	"videocounter/internal/model"
	"videocounter/internal/service/counting"
	"videocounter/internal/service/frame"
)

// ErrAlreadyRun is returned when Run is called on a pipeline that already ran.
var ErrAlreadyRun = errors.New("pipeline already ran")

type State int

const (
	StatePending State = iota
	StateOpened
	StateIterating
	StateDrained
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOpened:
		return "opened"
	case StateIterating:
		return "iterating"
	case StateDrained:
		return "drained"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Detector is the capability the pipeline needs from an object detection backend.
type Detector interface {
	Detect(img frame.Image, classes []int, threshold float64) ([]model.Detection, error)
}

// Annotator draws detections and running counts onto a copy of a frame.
type Annotator interface {
	Annotate(img frame.Image, detections []model.Detection, count model.FrameCount, catalog *model.ClassCatalog, totalFrames int) (frame.Image, error)
}

// Progress is emitted after every processed frame.
type Progress struct {
	FrameIndex int
	Current    int  // FrameIndex + 1
	Total      int  // Declared frame count, 0 when unknown
	Known      bool // False once the declared count turned out to be unreliable
	Count      model.FrameCount
	Elapsed    time.Duration // Time spent on this frame
}

// Percent returns the completion percentage, or false when progress is indeterminate.
func (p Progress) Percent() (float64, bool) {
	if !p.Known || p.Total <= 0 {
		return 0, false
	}
	return float64(p.Current) * 100 / float64(p.Total), true
}

type Config struct {
	SourcePath string
	OutputPath string
	SaveOutput bool
	Confidence float64
	Catalog    *model.ClassCatalog
}

type Deps struct {
	Opener    frame.Opener
	Muxers    frame.MuxerFactory
	Detector  Detector
	Annotator Annotator
	Logger    *logger.Logger
}

// Pipeline is a single-use run over one source video.
type Pipeline struct {
	cfg  Config
	deps Deps

	mu    sync.Mutex
	state State
	ran   bool
	info  frame.VideoInfo
}

func New(cfg Config, deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps}
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Info returns the source metadata once the source is opened.
func (p *Pipeline) Info() frame.VideoInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run processes the whole source. Progress is sent on updates (which may be nil)
// in frame order; nothing is sent after Run returns. On success the pipeline is
// Drained and the summary is returned; on any error it is Aborted, no summary is
// produced, and partial output is flushed and kept. Cancellation of ctx is
// honoured at frame boundaries.
func (p *Pipeline) Run(ctx context.Context, updates chan<- Progress) (summary model.RunSummary, err error) {
	p.mu.Lock()
	if p.ran {
		p.mu.Unlock()
		return model.RunSummary{}, ErrAlreadyRun
	}
	p.ran = true
	p.mu.Unlock()

	defer func() {
		if err != nil {
			summary = model.RunSummary{}
			p.setState(StateAborted)
			return
		}
		p.setState(StateDrained)
	}()

	if err := p.validate(); err != nil {
		return model.RunSummary{}, err
	}

	src, err := p.deps.Opener.Open(p.cfg.SourcePath)
	if err != nil {
		if !errors.Is(err, model.ErrSourceUnavailable) && !errors.Is(err, model.ErrSourceCorrupt) {
			err = fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
		}
		return model.RunSummary{}, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			p.deps.Logger.Warning("Failed to close source %s: %v", p.cfg.SourcePath, cerr)
		}
	}()

	info := src.Info()
	if err := info.Validate(); err != nil {
		return model.RunSummary{}, err
	}
	p.mu.Lock()
	p.info = info
	p.state = StateOpened
	p.mu.Unlock()
	p.deps.Logger.Info("Video: %dx%d @ %.2ffps, %d frames", info.Width, info.Height, info.FPS, info.TotalFrames)

	agg := counting.NewAggregator(p.cfg.Catalog)

	var mux frame.Muxer
	if p.cfg.SaveOutput {
		mux, err = p.deps.Muxers.Create(p.cfg.OutputPath, info)
		if err != nil {
			return model.RunSummary{}, fmt.Errorf("failed to open output %s: %w", p.cfg.OutputPath, err)
		}
		agg.SetOutputPath(p.cfg.OutputPath)
		defer func() {
			if cerr := mux.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to finalize output %s: %w", p.cfg.OutputPath, cerr)
			}
		}()
	}

	p.setState(StateIterating)
	if err := p.iterate(ctx, src, info, agg, mux, updates); err != nil {
		p.deps.Logger.Warning("Run stopped after %d frames: %v", agg.FramesObserved(), err)
		return model.RunSummary{}, err
	}

	summary = agg.Finalize()
	p.deps.Logger.Info("Processing complete! Total frames processed: %d", summary.FramesProcessed)
	if n := agg.Ignored(); n > 0 {
		p.deps.Logger.Info("Skipped %d detections outside the %s catalog", n, p.cfg.Catalog.Noun())
	}
	return summary, nil
}

func (p *Pipeline) validate() error {
	if p.cfg.Catalog == nil {
		return fmt.Errorf("%w: no class catalog", model.ErrInvalidInput)
	}
	if err := model.ValidateThreshold(p.cfg.Confidence); err != nil {
		return err
	}
	if p.cfg.SaveOutput && p.cfg.OutputPath == "" {
		return fmt.Errorf("%w: output requested without a path", model.ErrInvalidInput)
	}
	if p.deps.Opener == nil || p.deps.Detector == nil || p.deps.Annotator == nil {
		return fmt.Errorf("%w: pipeline dependencies missing", model.ErrInvalidInput)
	}
	if p.cfg.SaveOutput && p.deps.Muxers == nil {
		return fmt.Errorf("%w: no muxer factory for output", model.ErrInvalidInput)
	}
	return nil
}

func (p *Pipeline) iterate(ctx context.Context, src frame.Source, info frame.VideoInfo, agg *counting.Aggregator, mux frame.Muxer, updates chan<- Progress) error {
	known := info.FrameCountKnown()
	total := info.TotalFrames
	if !known {
		total = 0
	}
	classes := p.cfg.Catalog.IDs()

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w at frame %d: %v", model.ErrCancelled, index, err)
		}

		img, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w at frame %d: %v", model.ErrCancelled, index, ctx.Err())
			}
			if !errors.Is(err, model.ErrFrameDecode) {
				err = fmt.Errorf("%w: %v", model.ErrFrameDecode, err)
			}
			return fmt.Errorf("frame %d: %w", index, err)
		}

		if known && index >= info.TotalFrames {
			known = false
			total = 0
			p.deps.Logger.Warning("Source declared %d frames but frame %d was read; progress is now indeterminate", info.TotalFrames, index+1)
		}

		started := time.Now()
		count, err := p.processFrame(img, classes, agg, mux, total)
		if err != nil {
			return fmt.Errorf("frame %d: %w", index, err)
		}

		if (index+1)%30 == 0 {
			p.deps.Logger.Info("Frame %d/%d - %s: %d", index+1, total, p.cfg.Catalog.Noun(), count.Total)
		}

		if updates == nil {
			continue
		}
		progress := Progress{
			FrameIndex: index,
			Current:    index + 1,
			Total:      info.TotalFrames,
			Known:      known,
			Count:      count,
			Elapsed:    time.Since(started),
		}
		select {
		case updates <- progress:
		case <-ctx.Done():
			return fmt.Errorf("%w at frame %d: %v", model.ErrCancelled, index+1, ctx.Err())
		}
	}
}

// processFrame runs one frame through detect, observe, annotate and mux.
// The frame is released before returning.
func (p *Pipeline) processFrame(img frame.Image, classes []int, agg *counting.Aggregator, mux frame.Muxer, totalFrames int) (model.FrameCount, error) {
	defer img.Close()

	detections, err := p.deps.Detector.Detect(img, classes, p.cfg.Confidence)
	if err != nil {
		return model.FrameCount{}, fmt.Errorf("detection failed: %w", err)
	}

	count, err := agg.Observe(detections)
	if err != nil {
		return model.FrameCount{}, err
	}

	annotated, err := p.deps.Annotator.Annotate(img, detections, count, p.cfg.Catalog, totalFrames)
	if err != nil {
		return model.FrameCount{}, fmt.Errorf("annotation failed: %w", err)
	}
	defer annotated.Close()

	if mux != nil {
		if err := mux.Write(annotated); err != nil {
			return model.FrameCount{}, fmt.Errorf("failed to write frame: %w", err)
		}
	}
	return count, nil
}
