package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ActionsConfig configures the Solana Actions endpoints. Actions are
// disabled when Builder is nil.
type ActionsConfig struct {
	Builder      TransferBuilder
	BaseURL      string
	BlockchainID string
	Decimals     uint8
	AppName      string
}

// Server provides HTTP endpoints
type Server struct {
	logger  zerolog.Logger
	client  ClientInterface
	actions ActionsConfig
	server  *http.Server
}

// NewServer creates a new Server instance
func NewServer(logger zerolog.Logger, client ClientInterface, actions ActionsConfig, port int) *Server {
	if actions.AppName == "" {
		actions.AppName = "PhasmaPay"
	}
	s := &Server{
		logger:  logger.With().Str("component", "query_server").Logger(),
		client:  client,
		actions: actions,
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("query server is nil")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to address %s: %w", s.server.Addr, err)
	}

	go func() {
		err := s.server.Serve(ln)
		switch err {
		case nil:
			s.logger.Info().Msg("Query server stopped normally")
		case http.ErrServerClosed:
			s.logger.Info().Msg("Query server closed gracefully")
		default:
			s.logger.Error().Err(err).Msg("Query server error")
		}
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("Query server listening")
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
