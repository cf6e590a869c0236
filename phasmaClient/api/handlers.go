package api

import (
	"encoding/json"
	"net/http"

	"github.com/phasmapay/phasma/phasmaClient/cache"
	"github.com/phasmapay/phasma/phasmaClient/history"
)

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleClaimable handles GET /api/v1/claimable. It serves the last scan and
// never touches the ledger.
func (s *Server) handleClaimable(w http.ResponseWriter, r *http.Request) {
	items, total, updated := s.client.ClaimableSnapshot()
	if items == nil {
		items = []cache.ClaimableEntry{}
	}
	s.writeJSON(w, http.StatusOK, QueryResponse{
		Data:        ClaimableResponse{Items: items, Total: total.String()},
		LastFetched: updated,
	})
}

// handleHistory handles GET /api/v1/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, totals, err := s.client.History(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read history")
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to read history"})
		return
	}
	if entries == nil {
		entries = []history.StoredTransaction{}
	}
	s.writeJSON(w, http.StatusOK, QueryResponse{Data: HistoryResponse{
		Transactions:  entries,
		TotalCashback: totals.Cashback.String(),
		TotalSavedGas: totals.SavedGas.String(),
	}})
}

// handleGhostState handles GET /api/v1/ghost/state
func (s *Server) handleGhostState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, QueryResponse{Data: s.client.GhostState()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}
