package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/app/config"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
)

type Server struct {
	srv *http.Server
	log logger.Logger
}

func NewServer(cfg config.HTTPServerConfig, handler http.Handler, log logger.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		log: log,
	}
}

// Run serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Run() error {
	s.log.Infow("HTTP server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("HTTP server shutting down")
	return s.srv.Shutdown(ctx)
}
