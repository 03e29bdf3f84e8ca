package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitos/points_trading/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router  *http.ServeMux
	server  *http.Server
	service *usecase.PositionService
	userID  int64
	logger  *zap.Logger
}

func NewServer(port int, service *usecase.PositionService, userID int64, logger *zap.Logger) *Server {
	s := &Server{
		router:  http.NewServeMux(),
		service: service,
		userID:  userID,
		logger:  logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Balance
	s.router.HandleFunc("GET /api/balance", s.handleBalance)

	// Positions
	s.router.HandleFunc("GET /api/positions", s.handleListPositions)
	s.router.HandleFunc("POST /api/positions/open", s.handleOpenPosition)
	s.router.HandleFunc("POST /api/positions/{id}/close", s.handleClosePosition)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
