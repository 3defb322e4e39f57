package grpc

import (
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/olyamironova/auction-engine/internal/core"
)

// ServiceName is the health service name reported for the engine.
const ServiceName = "auction.Engine"

// GRPCServer exposes the standard health protocol. The engine reports
// NOT_SERVING until recovery has finished.
type GRPCServer struct {
	Eng    *core.Engine
	srv    *grpc.Server
	health *health.Server
	log    *zap.Logger
}

func NewGRPCServer(eng *core.Engine, log *zap.Logger) *GRPCServer {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCServer{Eng: eng, srv: srv, health: hs, log: log}
}

// MarkServing flips the health status once the engine accepts traffic.
func (s *GRPCServer) MarkServing() {
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.log.Info("grpc health serving", zap.Int("active_auctions", len(s.Eng.ActiveAuctions())))
}

func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

// Stop reports NOT_SERVING and drains in-flight calls.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
