// Package grpc exposes the standard gRPC health service so orchestrators can
// probe the service over gRPC as well as HTTP.
package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// Pinger is a dependency whose failure marks the service NOT_SERVING.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server gRPC 服务器
type Server struct {
	addr   string
	server *grpc.Server
	health *health.Server
	checks map[string]Pinger
	log    logger.Logger
}

// NewServer 创建 gRPC 服务器并注册健康检查服务。nil 的依赖项会被跳过。
func NewServer(addr string, log logger.Logger, limiter service.RateLimiter, checks map[string]Pinger) *Server {
	log = log.WithComponent("GRPCServer")
	chain := NewInterceptorChain(log, limiter)

	live := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			live[name] = p
		}
	}

	s := &Server{
		addr:   addr,
		server: grpc.NewServer(chain.ChainUnaryInterceptors()),
		health: health.NewServer(),
		checks: live,
		log:    log,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
	return s
}

// GRPCServer exposes the underlying server, mainly for tests.
func (s *Server) GRPCServer() *grpc.Server {
	return s.server
}

// Serve 在 lis 上提供服务，阻塞直到 Stop 被调用
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info(context.Background(), "Starting gRPC server", logger.String("address", lis.Addr().String()))
	if err := s.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Start listens on the configured address and serves.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Probe pings every dependency once and publishes the aggregate status.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	for name, p := range s.checks {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := p.Ping(pingCtx)
		cancel()
		if err != nil {
			s.log.Warn(ctx, "dependency unhealthy", logger.String("dependency", name), logger.Err(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.setStatus(st)
	return st
}

// WatchHealth probes on every tick until ctx is done.
func (s *Server) WatchHealth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Stop 优雅停止；ctx 超时后强制关闭
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
	}
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(constants.ServiceName, st)
}
