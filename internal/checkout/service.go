package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zombor/cardscan/internal/card"
	"github.com/zombor/cardscan/internal/scanning"
	"github.com/zombor/cardscan/internal/secure"
	"github.com/zombor/cardscan/internal/session"
)

// Flow states reported by Status
const (
	StateIdle      = "idle"
	StatePolling   = "polling"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateExpired   = "expired"
)

// Status is what the payment form sees of the current scan flow
type Status struct {
	State     string       `json:"state"`
	SessionID string       `json:"sessionId,omitempty"`
	ScanURL   string       `json:"scanUrl,omitempty"`
	Fields    *card.Fields `json:"fields,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Deps are the pipeline stages the Service drives
type Deps struct {
	Initiator *scanning.Initiator
	Poller    *scanning.Poller
	Store     session.Store
	Extractor secure.KeyExtractor
	Decryptor *secure.Decryptor
	Validator *card.Validator
}

// Service runs the card scan flow: start a session, poll for the payload,
// decrypt it and extract the card fields
type Service struct {
	initiator *scanning.Initiator
	poller    *scanning.Poller
	store     session.Store
	extractor secure.KeyExtractor
	decryptor *secure.Decryptor
	validator *card.Validator

	// polling outlives the HTTP request that started it
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	current *session.ScanSession
	status  Status
}

// NewService creates a new Service
func NewService(deps Deps) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		initiator: deps.Initiator,
		poller:    deps.Poller,
		store:     deps.Store,
		extractor: deps.Extractor,
		decryptor: deps.Decryptor,
		validator: deps.Validator,
		ctx:       ctx,
		cancel:    cancel,
		status:    Status{State: StateIdle},
	}
}

// StartScan supersedes any running flow with a new scan session and starts polling it
func (s *Service) StartScan(ctx context.Context, merchant scanning.Merchant) (*session.ScanSession, error) {
	// a late handler from the old loop must not touch the new session's store
	s.poller.Cancel()
	s.poller.Wait()

	sess, err := s.initiator.Start(ctx, merchant)
	if err != nil {
		s.mu.Lock()
		s.current = nil
		s.status = Status{State: StateFailed, Error: userMessage(err)}
		s.mu.Unlock()
		slog.Error("Failed to start card scan", "merchant_id", merchant.ID, "error", err)
		return nil, err
	}

	s.track(sess)
	if err := s.startPolling(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Resume restarts polling for a session persisted before a restart.
// It returns session.ErrNotFound when there is nothing to resume.
func (s *Service) Resume() (*session.ScanSession, error) {
	sess, err := session.Load(s.store)
	if err != nil {
		return nil, err
	}

	if session.Retrieved(s.store) {
		// the ciphertext is single use; the user has to start over
		s.mu.Lock()
		s.current = sess
		s.status = Status{
			State:     StateFailed,
			SessionID: sess.SessionID,
			Error:     "This card scan has already finished. Please restart the card scan.",
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("resuming session %s: %w", sess.SessionID, scanning.ErrPayloadRetrieved)
	}

	s.track(sess)
	if err := s.startPolling(sess); err != nil {
		return nil, err
	}
	slog.Info("Resumed card scan", "session_id", sess.SessionID, "flow_id", sess.FlowID)
	return sess, nil
}

// Status returns a snapshot of the current flow
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if st.Fields != nil {
		fields := *st.Fields
		st.Fields = &fields
	}
	st.Warnings = append([]string(nil), st.Warnings...)
	return st
}

// Reset stops polling and forgets the current flow
func (s *Service) Reset() error {
	s.poller.Cancel()
	s.poller.Wait()

	s.mu.Lock()
	s.current = nil
	s.status = Status{State: StateIdle}
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("clearing session store: %w", err)
	}
	return nil
}

// Close stops any running poll loop
func (s *Service) Close() {
	s.cancel()
	s.poller.Cancel()
	s.poller.Wait()
}

func (s *Service) track(sess *session.ScanSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
	s.status = Status{
		State:     StatePolling,
		SessionID: sess.SessionID,
		ScanURL:   sess.ScanURL,
	}
}

func (s *Service) startPolling(sess *session.ScanSession) error {
	err := s.poller.Start(s.ctx, sess.SessionID, scanning.PollHandlers{
		Found: func(p scanning.EncryptedPayload) {
			s.handlePayload(sess, p)
		},
		Exhausted: func(err error) {
			// an expired session is never resumed
			if clearErr := s.store.Clear(); clearErr != nil {
				slog.Warn("Failed to clear session store", "session_id", sess.SessionID, "error", clearErr)
			}
			s.fail(sess, StateExpired, err)
		},
	})
	if err != nil {
		s.fail(sess, StateFailed, err)
		return fmt.Errorf("polling session %s: %w", sess.SessionID, err)
	}
	return nil
}

// handlePayload runs once per session on the poll goroutine. Whatever
// happens here, the session is not polled again.
func (s *Service) handlePayload(sess *session.ScanSession, p scanning.EncryptedPayload) {
	if err := session.MarkRetrieved(s.store, p.RetrievedAt); err != nil {
		slog.Warn("Failed to record payload retrieval", "session_id", sess.SessionID, "error", err)
	}

	key, err := s.extractor.ExtractKey(sess.AuthToken)
	if err != nil {
		s.fail(sess, StateFailed, err)
		return
	}
	defer clear(key)

	result, err := s.decryptor.Decrypt(p.Ciphertext, key)
	if err != nil {
		s.fail(sess, StateFailed, err)
		return
	}

	extraction, err := s.validator.Validate(result)
	if err != nil {
		s.fail(sess, StateFailed, err)
		return
	}

	warnings := make([]string, 0, len(extraction.Warnings))
	for _, w := range extraction.Warnings {
		slog.Warn("Low scan confidence", "session_id", sess.SessionID, "warning", w.String())
		warnings = append(warnings, w.String())
	}

	if err := s.store.Clear(); err != nil {
		slog.Warn("Failed to clear session store", "session_id", sess.SessionID, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != sess {
		return
	}
	fields := extraction.Fields
	s.status = Status{
		State:     StateCompleted,
		SessionID: sess.SessionID,
		ScanURL:   sess.ScanURL,
		Fields:    &fields,
		Warnings:  warnings,
	}
	slog.Info("Card scan completed", "session_id", sess.SessionID, "flow_id", sess.FlowID, "warnings", len(warnings))
}

func (s *Service) fail(sess *session.ScanSession, state string, err error) {
	slog.Error("Card scan failed", "session_id", sess.SessionID, "flow_id", sess.FlowID, "error", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != sess {
		return
	}
	s.status = Status{
		State:     state,
		SessionID: sess.SessionID,
		ScanURL:   sess.ScanURL,
		Error:     userMessage(err),
	}
}

// userMessage maps a pipeline error to the single line shown in the form
func userMessage(err error) string {
	var (
		tokenErr      *scanning.ScanTokenError
		keyErr        *secure.MissingKeyError
		decryptErr    *secure.DecryptionError
		incompleteErr *card.IncompleteScanError
		fieldErr      *card.MissingFieldError
	)
	switch {
	case errors.Is(err, scanning.ErrMerchantRequired):
		return "A merchant id is required to start a card scan."
	case errors.As(err, &tokenErr):
		return "Could not start the card scan. Please try again."
	case errors.As(err, &keyErr):
		return "The scan session is invalid. Please restart the card scan."
	case errors.As(err, &decryptErr):
		return "The scanned card data could not be read. Please restart the card scan."
	case errors.As(err, &incompleteErr):
		return incompleteErr.Error()
	case errors.As(err, &fieldErr):
		return fmt.Sprintf("The scan did not capture the %s. Please scan again or enter the card manually.", fieldLabel(fieldErr.Field))
	case errors.Is(err, scanning.ErrPollExhausted):
		return "The card scan timed out. Please restart the card scan."
	case errors.Is(err, scanning.ErrPayloadRetrieved):
		return "This card scan has already finished. Please restart the card scan."
	default:
		return "Card scan failed. Please try again."
	}
}

func fieldLabel(field string) string {
	switch field {
	case "card_number":
		return "card number"
	case "expiry_date":
		return "expiry date"
	default:
		return "card details"
	}
}
