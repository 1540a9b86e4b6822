package scanning

import (
	"errors"
	"fmt"
)

var (
	// ErrPollExhausted is reported when the retry policy's attempt or time bound is hit
	ErrPollExhausted = errors.New("scan polling gave up before the payload was ready")

	// ErrPayloadRetrieved is returned when polling is requested for a session
	// whose payload was already fetched
	ErrPayloadRetrieved = errors.New("payload already retrieved for session")

	// ErrMerchantRequired is returned, wrapped in a ScanTokenError, when no
	// merchant id is given. The backend is not called.
	ErrMerchantRequired = errors.New("merchant id is required")
)

// ScanTokenError is returned when a scan session could not be created.
// It is never retried automatically.
type ScanTokenError struct {
	Err error
}

func (e *ScanTokenError) Error() string {
	return fmt.Sprintf("requesting scan token: %v", e.Err)
}

func (e *ScanTokenError) Unwrap() error {
	return e.Err
}

// TransientPollError is a single failed poll attempt. The loop keeps going.
type TransientPollError struct {
	SessionID string
	Attempt   int
	Err       error
}

func (e *TransientPollError) Error() string {
	return fmt.Sprintf("poll attempt %d for session %s: %v", e.Attempt, e.SessionID, e.Err)
}

func (e *TransientPollError) Unwrap() error {
	return e.Err
}
