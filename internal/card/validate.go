package card

import "strings"

// DefaultConfidenceThreshold is the score below which a scan is flagged
const DefaultConfidenceThreshold = 80

// Validator turns a decrypted scan result into form fields
type Validator struct {
	threshold float64
}

// NewValidator creates a Validator. A non-positive threshold uses the default.
func NewValidator(threshold float64) *Validator {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Validator{threshold: threshold}
}

// Validate checks completion and required fields, then extracts the card
// fields. Low confidence is reported in Warnings and never fails validation.
func (v *Validator) Validate(result *ScanResult) (*Extraction, error) {
	if result == nil || !result.CompleteScan {
		return nil, &IncompleteScanError{}
	}
	if result.FinalOCR == nil {
		return nil, &MissingFieldError{Field: "finalOcr"}
	}

	number, numberName, ok := lookup(result.FinalOCR, cardNumberNames)
	if !ok {
		return nil, &MissingFieldError{Field: cardNumberNames[0]}
	}
	expiry, expiryName, ok := lookup(result.FinalOCR, expiryDateNames)
	if !ok {
		return nil, &MissingFieldError{Field: expiryDateNames[0]}
	}
	name, nameName, hasName := lookup(result.FinalOCR, cardholderNameNames)

	extraction := &Extraction{
		Fields: Fields{
			CardNumber:     normalizeNumber(number.Value),
			CardholderName: strings.TrimSpace(name.Value),
			ExpiryDate:     strings.TrimSpace(expiry.Value),
			CVV:            "",
		},
	}

	if c := result.OverallConfidence; c != nil && *c < v.threshold {
		extraction.Warnings = append(extraction.Warnings, LowConfidenceWarning{
			Confidence: *c,
			Threshold:  v.threshold,
		})
	}
	extraction.Warnings = v.fieldWarning(extraction.Warnings, numberName, number)
	extraction.Warnings = v.fieldWarning(extraction.Warnings, expiryName, expiry)
	if hasName {
		extraction.Warnings = v.fieldWarning(extraction.Warnings, nameName, name)
	}

	return extraction, nil
}

func (v *Validator) fieldWarning(warnings []LowConfidenceWarning, name string, f OCRField) []LowConfidenceWarning {
	if f.Confidence == nil || *f.Confidence >= v.threshold {
		return warnings
	}
	return append(warnings, LowConfidenceWarning{
		Field:      name,
		Confidence: *f.Confidence,
		Threshold:  v.threshold,
	})
}

// lookup returns the first non-empty field among names
func lookup(ocr map[string]OCRField, names []string) (OCRField, string, bool) {
	for _, name := range names {
		if f, ok := ocr[name]; ok && strings.TrimSpace(f.Value) != "" {
			return f, name, true
		}
	}
	return OCRField{}, "", false
}

func normalizeNumber(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(s))
}
