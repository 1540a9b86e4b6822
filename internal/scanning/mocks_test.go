package scanning

import (
	"context"
	"sync"
	"time"
)

type pollResponse struct {
	data string
	err  error
}

// mockBackend is a mock implementation of Backend
type mockBackend struct {
	mu sync.Mutex

	tokenResp  *TokenResponse
	tokenErr   error
	tokenCalls int
	merchants  []Merchant

	// polls are served in order; the last one repeats
	polls     []pollResponse
	pollDelay time.Duration
	// slowAnswer makes the delay ignore ctx, like a response already on the wire
	slowAnswer bool
	pollCalls map[string]int
	inFlight  int
	maxFlight int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		tokenResp: &TokenResponse{
			AuthToken: "auth-token",
			ScanURL:   "https://scan.example/S1",
			ScanID:    "S1",
		},
		polls:     []pollResponse{{}},
		pollCalls: make(map[string]int),
	}
}

func (m *mockBackend) GenerateToken(ctx context.Context, merchant Merchant) (*TokenResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenCalls++
	m.merchants = append(m.merchants, merchant)
	if m.tokenErr != nil {
		return nil, m.tokenErr
	}
	resp := *m.tokenResp
	return &resp, nil
}

func (m *mockBackend) GetEncryptedData(ctx context.Context, scanID string) (string, error) {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxFlight {
		m.maxFlight = m.inFlight
	}
	n := m.pollCalls[scanID]
	m.pollCalls[scanID]++
	resp := m.polls[len(m.polls)-1]
	if n < len(m.polls) {
		resp = m.polls[n]
	}
	delay := m.pollDelay
	slow := m.slowAnswer
	m.mu.Unlock()

	if delay > 0 && slow {
		time.Sleep(delay)
	} else if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
	return resp.data, resp.err
}

func (m *mockBackend) calls(scanID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollCalls[scanID]
}

func (m *mockBackend) maxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxFlight
}

// mockIDGenerator is a mock implementation of IDGenerator
type mockIDGenerator struct {
	id string
}

func (m *mockIDGenerator) Generate() string {
	return m.id
}

// mockTimeSource is a mock implementation of TimeSource
type mockTimeSource struct {
	now time.Time
}

func (m *mockTimeSource) Now() time.Time {
	return m.now
}

// foundRecorder collects Found and Exhausted callbacks
type foundRecorder struct {
	mu        sync.Mutex
	payloads  []EncryptedPayload
	exhausted []error
}

func (r *foundRecorder) handlers() PollHandlers {
	return PollHandlers{
		Found: func(p EncryptedPayload) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.payloads = append(r.payloads, p)
		},
		Exhausted: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.exhausted = append(r.exhausted, err)
		},
	}
}

func (r *foundRecorder) found() []EncryptedPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EncryptedPayload(nil), r.payloads...)
}

func (r *foundRecorder) exhaustedErrs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.exhausted...)
}
