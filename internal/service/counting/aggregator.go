package counting

import (
	"errors"
	"sync"

	"videocounter/internal/model"
)

// ErrFinalized is returned by Observe once the run summary has been produced.
var ErrFinalized = errors.New("aggregator already finalized")

// Aggregator turns per-frame detections into FrameCounts and accumulates
// the run-level statistics. Counts are independent per frame.
type Aggregator struct {
	catalog *model.ClassCatalog

	frames     int
	total      int
	max        int
	perClass   map[string]int
	ignored    int
	summary    *model.RunSummary
	outputPath string

	mu sync.Mutex
}

// NewAggregator creates an aggregator bound to a class catalog for one run.
func NewAggregator(catalog *model.ClassCatalog) *Aggregator {
	return &Aggregator{
		catalog:  catalog,
		perClass: catalog.ZeroCounts(),
	}
}

// Observe tallies one frame's detections. Detections whose class is not in the
// catalog are skipped and counted in Ignored.
func (a *Aggregator) Observe(detections []model.Detection) (model.FrameCount, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.summary != nil {
		return model.FrameCount{}, ErrFinalized
	}

	fc := model.FrameCount{
		FrameIndex: a.frames,
		PerClass:   a.catalog.ZeroCounts(),
	}
	for _, det := range detections {
		class, ok := a.catalog.Lookup(det.ClassID)
		if !ok {
			a.ignored++
			continue
		}
		fc.PerClass[class.Label]++
		fc.Total++
	}

	for label, n := range fc.PerClass {
		a.perClass[label] += n
	}
	a.frames++
	a.total += fc.Total
	if fc.Total > a.max {
		a.max = fc.Total
	}

	return fc, nil
}

// SetOutputPath records the annotated video path reported in the summary.
func (a *Aggregator) SetOutputPath(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.summary == nil {
		a.outputPath = path
	}
}

// Finalize seals the aggregator and returns the run summary. Repeated calls
// return the same values without recomputation.
func (a *Aggregator) Finalize() model.RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.summary == nil {
		avg := 0.0
		if a.frames > 0 {
			avg = float64(a.total) / float64(a.frames)
		}
		breakdown := make(map[string]int, len(a.perClass))
		for label, n := range a.perClass {
			breakdown[label] = n
		}
		a.summary = &model.RunSummary{
			FramesProcessed:   a.frames,
			TotalDetected:     a.total,
			MaxDetected:       a.max,
			AvgDetected:       avg,
			PerClassBreakdown: breakdown,
			OutputVideoPath:   a.outputPath,
		}
	}
	return a.summary.Clone()
}

// FramesObserved returns the number of frames tallied so far.
func (a *Aggregator) FramesObserved() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

// Ignored returns how many detections fell outside the catalog.
func (a *Aggregator) Ignored() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ignored
}
