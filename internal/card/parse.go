package card

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// rawResult accepts both camelCase and snake_case keys
type rawResult struct {
	CompleteScan           *bool               `json:"completeScan"`
	CompleteScanSnake      *bool               `json:"complete_scan"`
	FinalOCR               map[string]rawField `json:"finalOcr"`
	FinalOCRSnake          map[string]rawField `json:"final_ocr"`
	OverallConfidence      flexFloat           `json:"overallConfidence"`
	OverallConfidenceSnake flexFloat           `json:"overall_confidence"`
}

type rawField struct {
	Value      flexString `json:"value"`
	Confidence flexFloat  `json:"confidence"`
}

// flexFloat decodes a number or a numeric string
type flexFloat struct {
	value *float64
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parsing confidence %q: %w", s, err)
		}
		f.value = &v
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.value = &v
	return nil
}

// flexString decodes a string or a bare number
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// ParseResult parses decrypted scan output into a ScanResult. It keeps no
// reference to data, so the caller can wipe the buffer afterwards.
func ParseResult(data []byte) (*ScanResult, error) {
	text := bytes.TrimSpace(data)

	// Remove markdown code blocks if present
	text = bytes.TrimPrefix(text, []byte("```json"))
	text = bytes.TrimPrefix(text, []byte("```"))
	text = bytes.TrimSuffix(text, []byte("```"))
	text = bytes.TrimSpace(text)

	startIdx := bytes.IndexByte(text, '{')
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in payload")
	}
	endIdx := bytes.LastIndexByte(text, '}')
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in payload")
	}
	text = text[startIdx : endIdx+1]

	var raw rawResult
	if err := json.Unmarshal(text, &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	result := &ScanResult{}
	switch {
	case raw.CompleteScan != nil:
		result.CompleteScan = *raw.CompleteScan
	case raw.CompleteScanSnake != nil:
		result.CompleteScan = *raw.CompleteScanSnake
	}

	fields := raw.FinalOCR
	if fields == nil {
		fields = raw.FinalOCRSnake
	}
	if fields != nil {
		result.FinalOCR = make(map[string]OCRField, len(fields))
		for name, f := range fields {
			result.FinalOCR[name] = OCRField{
				Value:      string(f.Value),
				Confidence: f.Confidence.value,
			}
		}
	}

	result.OverallConfidence = raw.OverallConfidence.value
	if result.OverallConfidence == nil {
		result.OverallConfidence = raw.OverallConfidenceSnake.value
	}

	return result, nil
}
