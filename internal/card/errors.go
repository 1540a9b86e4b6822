package card

import "fmt"

// IncompleteScanError is returned when the scanning service did not finish
type IncompleteScanError struct{}

func (e *IncompleteScanError) Error() string {
	return "Card scan was not completed successfully"
}

// MissingFieldError names a required OCR field that was absent or empty
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// LowConfidenceWarning is advisory. It never blocks extraction.
type LowConfidenceWarning struct {
	Field      string  `json:"field,omitempty"` // empty for the overall score
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
}

func (w LowConfidenceWarning) String() string {
	if w.Field == "" {
		return fmt.Sprintf("low overall scan confidence: %.0f (threshold %.0f)", w.Confidence, w.Threshold)
	}
	return fmt.Sprintf("low confidence for %s: %.0f (threshold %.0f)", w.Field, w.Confidence, w.Threshold)
}
