package session

import (
	"errors"
	"fmt"
	"time"
)

// Keys under which a scan session is persisted
const (
	KeyAuthToken   = "authToken"
	KeyScanURL     = "scanUrl"
	KeySessionID   = "sessionId"
	KeyFlowID      = "flowId"
	KeyCreatedAt   = "createdAt"
	KeyRetrievedAt = "retrievedAt"
)

// ScanSession is the server-issued context for one card capture request.
// It is never mutated; starting a new flow replaces it.
type ScanSession struct {
	SessionID string    `json:"sessionId"`
	AuthToken string    `json:"-"`
	ScanURL   string    `json:"scanUrl"`
	FlowID    string    `json:"flowId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Save persists the session fields so the flow can resume after a restart
func Save(store Store, s *ScanSession) error {
	values := []struct{ key, value string }{
		{KeyAuthToken, s.AuthToken},
		{KeyScanURL, s.ScanURL},
		{KeySessionID, s.SessionID},
		{KeyFlowID, s.FlowID},
		{KeyCreatedAt, s.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
	for _, v := range values {
		if err := store.Put(v.key, v.value); err != nil {
			return fmt.Errorf("saving %s: %w", v.key, err)
		}
	}
	return nil
}

// Load reads a previously saved session. It returns ErrNotFound when no
// session id or auth token is stored.
func Load(store Store) (*ScanSession, error) {
	sessionID, err := store.Get(KeySessionID)
	if err != nil {
		return nil, err
	}
	authToken, err := store.Get(KeyAuthToken)
	if err != nil {
		return nil, err
	}

	s := &ScanSession{
		SessionID: sessionID,
		AuthToken: authToken,
	}
	if s.ScanURL, err = optional(store, KeyScanURL); err != nil {
		return nil, err
	}
	if s.FlowID, err = optional(store, KeyFlowID); err != nil {
		return nil, err
	}
	created, err := optional(store, KeyCreatedAt)
	if err != nil {
		return nil, err
	}
	if created != "" {
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			s.CreatedAt = t
		}
	}
	return s, nil
}

// MarkRetrieved records that the encrypted payload for the stored session
// has been fetched and must not be requested again.
func MarkRetrieved(store Store, at time.Time) error {
	return store.Put(KeyRetrievedAt, at.UTC().Format(time.RFC3339Nano))
}

// Retrieved reports whether the stored session already has its payload
func Retrieved(store Store) bool {
	v, err := store.Get(KeyRetrievedAt)
	return err == nil && v != ""
}

func optional(store Store, key string) (string, error) {
	v, err := store.Get(key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}
