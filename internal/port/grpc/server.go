package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/app/config"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	log        logger.Logger
	port       string
}

func NewServer(cfg config.GRPCServerConfig, log logger.Logger) *Server {
	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     cfg.MaxConnectionIdle,
			Timeout:               20 * time.Second,
			MaxConnectionAge:      cfg.MaxConnectionIdle,
			Time:                  cfg.MaxConnectionIdle,
			MaxConnectionAgeGrace: 5 * time.Second,
		}),
	}

	grpcServer := grpc.NewServer(serverOpts...)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	return &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		log:        log,
		port:       cfg.Port,
	}
}

// Health returns the health service so its statuses can be driven from outside.
func (s *Server) Health() *health.Server {
	return s.health
}

func (s *Server) Start() error {
	s.log.Infof("gRPC server is starting on port %s", s.port)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.port, err)
	}

	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("gRPC server failed to serve: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("gRPC server is stopping gracefully")
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.log.Warn("graceful shutdown timed out, forcing stop")
		s.grpcServer.Stop()
		return ctx.Err()
	case <-stopped:
		s.log.Info("gRPC server stopped gracefully")
		return nil
	}
}
