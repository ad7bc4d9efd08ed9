package dto

// ProcessRequest is the body of a process call. Omitted fields fall back to the
// server defaults, so an empty body is valid.
type ProcessRequest struct {
	Confidence *float64 `json:"confidence"`
	SaveOutput *bool    `json:"save_output"`
}

// Resolve applies defaults to the omitted fields.
func (r ProcessRequest) Resolve(defaultConfidence float64) (confidence float64, saveOutput bool) {
	confidence, saveOutput = defaultConfidence, true
	if r.Confidence != nil {
		confidence = *r.Confidence
	}
	if r.SaveOutput != nil {
		saveOutput = *r.SaveOutput
	}
	return confidence, saveOutput
}
