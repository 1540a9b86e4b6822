package checkout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zombor/cardscan/internal/scanning"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes {"error": message} with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

type startScanRequest struct {
	MerchantID      string `json:"merchantId"`
	MerchantContact string `json:"merchantContact"`
	IsMobile        bool   `json:"isMobile"`
}

type startScanResponse struct {
	SessionID string `json:"sessionId"`
	ScanURL   string `json:"scanUrl"`
}

// handleStartScan starts a new scan flow, replacing any current one
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := s.service.StartScan(r.Context(), scanning.Merchant{
		ID:      req.MerchantID,
		Contact: req.MerchantContact,
		Mobile:  req.IsMobile,
	})
	if errors.Is(err, scanning.ErrMerchantRequired) {
		jsonError(w, userMessage(err), http.StatusBadRequest)
		return
	}
	if err != nil {
		jsonError(w, userMessage(err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(startScanResponse{
		SessionID: sess.SessionID,
		ScanURL:   sess.ScanURL,
	}); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetScan returns the current flow status, including card fields once extracted
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.service.Status()); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleResetScan abandons the current flow
func (s *Server) handleResetScan(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Reset(); err != nil {
		slog.Error("Error resetting scan", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
