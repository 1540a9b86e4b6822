package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zombor/cardscan/internal/session"
)

// Initiator requests scan sessions and persists them for resume
type Initiator struct {
	backend     Backend
	store       session.Store
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewInitiator creates a new Initiator with UUID flow ids and wall clock time
func NewInitiator(backend Backend, store session.Store) *Initiator {
	return NewInitiatorWithDeps(backend, store, uuidGenerator{}, defaultTimeSource{})
}

// NewInitiatorWithDeps creates a new Initiator with custom dependencies for testing
func NewInitiatorWithDeps(backend Backend, store session.Store, idGen IDGenerator, timeSrc TimeSource) *Initiator {
	return &Initiator{
		backend:     backend,
		store:       store,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Start requests a new scan session and replaces whatever the store held.
// Failures are returned as *ScanTokenError and are not retried.
func (i *Initiator) Start(ctx context.Context, merchant Merchant) (*session.ScanSession, error) {
	if strings.TrimSpace(merchant.ID) == "" {
		return nil, &ScanTokenError{Err: ErrMerchantRequired}
	}

	resp, err := i.backend.GenerateToken(ctx, merchant)
	if err != nil {
		return nil, &ScanTokenError{Err: err}
	}
	if resp.ScanID == "" {
		return nil, &ScanTokenError{Err: errors.New("response has no scan id")}
	}
	if resp.AuthToken == "" {
		return nil, &ScanTokenError{Err: errors.New("response has no auth token")}
	}

	s := &session.ScanSession{
		SessionID: resp.ScanID,
		AuthToken: resp.AuthToken,
		ScanURL:   resp.ScanURL,
		FlowID:    i.idGenerator.Generate(),
		CreatedAt: i.timeSource.Now(),
	}

	if err := i.store.Clear(); err != nil {
		return nil, &ScanTokenError{Err: fmt.Errorf("clearing previous session: %w", err)}
	}
	if err := session.Save(i.store, s); err != nil {
		return nil, &ScanTokenError{Err: fmt.Errorf("persisting session: %w", err)}
	}

	slog.Info("Scan session created",
		"session_id", s.SessionID,
		"flow_id", s.FlowID,
		"mobile", merchant.Mobile,
	)
	return s, nil
}
