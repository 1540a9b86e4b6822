package card

// OCRField is a single value read by the scanning service
type OCRField struct {
	Value      string   `json:"value"`
	Confidence *float64 `json:"confidence,omitempty"` // 0-100, nil when not reported
}

// ScanResult is the decrypted payload returned by the scanning service
type ScanResult struct {
	CompleteScan      bool                `json:"completeScan"`
	FinalOCR          map[string]OCRField `json:"finalOcr,omitempty"`
	OverallConfidence *float64            `json:"overallConfidence,omitempty"`
}

// Fields holds the card data handed to the payment form.
// CVV is never read from a scan; the user types it in.
type Fields struct {
	CardNumber     string `json:"cardNumber"`
	CardholderName string `json:"cardholderName"`
	ExpiryDate     string `json:"expiryDate"`
	CVV            string `json:"cvv"`
}

// Extraction is a successful validation result plus any advisories
type Extraction struct {
	Fields   Fields                 `json:"fields"`
	Warnings []LowConfidenceWarning `json:"warnings,omitempty"`
}

// OCR field names, most specific first
var (
	cardNumberNames     = []string{"card_number", "account_number", "cardNumber"}
	expiryDateNames     = []string{"expiry_date", "expiry", "expiryDate"}
	cardholderNameNames = []string{"cardholder_name", "name", "cardholderName"}
)
