package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/phasmapay/phasma/phasmaClient/metrics"
)

// setupRoutes configures all HTTP routes for the API server
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/claimable", s.handleClaimable).Methods(http.MethodGet)
	v1.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	v1.HandleFunc("/ghost/state", s.handleGhostState).Methods(http.MethodGet)

	if s.actions.Builder != nil {
		actions := r.NewRoute().Subrouter()
		actions.Use(s.actionHeaders)
		actions.HandleFunc("/actions.json", s.handleActionsJSON).Methods(http.MethodGet, http.MethodOptions)
		actions.HandleFunc("/api/actions/pay", s.handlePayMetadata).Methods(http.MethodGet, http.MethodOptions)
		actions.HandleFunc("/api/actions/pay/{address}", s.handlePayRecipient).Methods(http.MethodGet, http.MethodOptions)
		actions.HandleFunc("/api/actions/pay/{address}", s.handlePayTransaction).Methods(http.MethodPost)
	}

	return r
}

// actionHeaders adds the headers every Solana Actions response carries and
// answers CORS preflights.
func (s *Server) actionHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Content-Encoding, Accept-Encoding")
		h.Set("X-Action-Version", "2.1.3")
		h.Set("X-Blockchain-Ids", s.actions.BlockchainID)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
