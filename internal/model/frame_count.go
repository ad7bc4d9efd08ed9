package model

// FrameCount is the tally of detections, per class and total, for one frame.
// PerClass always holds every catalog label.
type FrameCount struct {
	FrameIndex int            `json:"frame_index"`
	PerClass   map[string]int `json:"per_class"`
	Total      int            `json:"total"`
}

// Clone returns a copy that shares no map with the receiver.
func (fc FrameCount) Clone() FrameCount {
	out := fc
	if fc.PerClass != nil {
		out.PerClass = make(map[string]int, len(fc.PerClass))
		for k, v := range fc.PerClass {
			out.PerClass[k] = v
		}
	}
	return out
}

// RunSummary holds aggregate statistics over an entire processed video.
type RunSummary struct {
	FramesProcessed   int            `json:"frames_processed"`
	TotalDetected     int            `json:"total_detected"`
	MaxDetected       int            `json:"max_detected"`
	AvgDetected       float64        `json:"avg_detected"`
	PerClassBreakdown map[string]int `json:"per_class_breakdown"`
	OutputVideoPath   string         `json:"output_video,omitempty"`
}

// Clone returns a copy that shares no map with the receiver.
func (s RunSummary) Clone() RunSummary {
	out := s
	if s.PerClassBreakdown != nil {
		out.PerClassBreakdown = make(map[string]int, len(s.PerClassBreakdown))
		for k, v := range s.PerClassBreakdown {
			out.PerClassBreakdown[k] = v
		}
	}
	return out
}
