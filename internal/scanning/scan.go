package scanning

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Merchant identifies who is requesting a card scan
type Merchant struct {
	ID      string `json:"merchantId"`
	Contact string `json:"merchantContact"`
	Mobile  bool   `json:"isMobile"`
}

// TokenResponse is the backend's answer to a scan session request
type TokenResponse struct {
	AuthToken string `json:"authToken"`
	ScanURL   string `json:"scanUrl"`
	ScanID    string `json:"scanId"`
}

// EncryptedPayload is the ciphertext delivered once a scan completes.
// It is fetched at most once per session.
type EncryptedPayload struct {
	SessionID   string
	Ciphertext  string
	RetrievedAt time.Time
}

// Backend defines the remote scan service operations
type Backend interface {
	// GenerateToken requests a new scan session
	GenerateToken(ctx context.Context, merchant Merchant) (*TokenResponse, error)

	// GetEncryptedData returns the payload for scanID, or "" if the scan
	// has not finished yet
	GetEncryptedData(ctx context.Context, scanID string) (string, error)
}

// IDGenerator generates flow IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}
