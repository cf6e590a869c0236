package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/phasmapay/phasma/phasmaClient/chains/common/commontest"
	"github.com/phasmapay/phasma/phasmaClient/ghost"
)

func TestSetupRoutes(t *testing.T) {
	client := &mockClient{}
	client.On("ClaimableSnapshot").Return(nil, decimal.Zero, time.Time{})
	client.On("GhostState").Return(ghost.Snapshot{State: "idle"})

	server := NewServer(zerolog.New(zerolog.NewTestWriter(t)), client, ActionsConfig{}, 0)
	mux := server.Handler()

	testCases := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"Health endpoint", http.MethodGet, "/health", http.StatusOK},
		{"Metrics endpoint", http.MethodGet, "/metrics", http.StatusOK},
		{"Claimable endpoint", http.MethodGet, "/api/v1/claimable", http.StatusOK},
		{"Ghost state endpoint", http.MethodGet, "/api/v1/ghost/state", http.StatusOK},
		{"Wrong method", http.MethodPost, "/api/v1/claimable", http.StatusMethodNotAllowed},
		{"Non-existent endpoint", http.MethodGet, "/api/v1/non-existent", http.StatusNotFound},
		{"Actions disabled without a builder", http.MethodGet, "/api/actions/pay", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			assert.Equal(t, tc.expectedStatus, w.Code)
		})
	}
}

func TestActionHeaders(t *testing.T) {
	server := newActionsServer(t, commontest.NewGateway())

	t.Run("preflight", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/actions/pay/abc", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET,POST,PUT,OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("every action response carries version headers", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/actions/pay", nil))

		assert.Equal(t, "2.1.3", w.Header().Get("X-Action-Version"))
		assert.Equal(t, "solana:devnet", w.Header().Get("X-Blockchain-Ids"))
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("query endpoints are not decorated", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Empty(t, w.Header().Get("X-Action-Version"))
	})
}
