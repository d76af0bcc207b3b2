package server

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// TranslatorHealthService is the health service name reporting the upstream translator.
const TranslatorHealthService = "komuniti.translator"

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// GRPCServer serves the standard grpc.health.v1 service plus reflection.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	logger *logrus.Logger
}

// NewGRPCServer creates a gRPC server with keepalive enforcement and health reporting.
func NewGRPCServer(logger *logrus.Logger) *GRPCServer {
	if logger == nil {
		logger = logrus.New()
	}

	var opts []grpc.ServerOption
	// Clients ping every 30s; anything faster than 15s is rejected.
	opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
		MinTime:             15 * time.Second,
		PermitWithoutStream: true,
	}))
	opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{
		MaxConnectionIdle:     5 * time.Minute,
		MaxConnectionAge:      30 * time.Minute,
		MaxConnectionAgeGrace: 5 * time.Second,
		Time:                  30 * time.Second,
		Timeout:               10 * time.Second,
	}))

	s := grpc.NewServer(opts...)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(s)

	return &GRPCServer{srv: s, health: healthServer, logger: logger}
}

// Serve accepts connections on lis until Shutdown.
func (g *GRPCServer) Serve(lis net.Listener) error {
	g.logger.WithFields(logrus.Fields{
		"addr": lis.Addr().String(),
	}).Info("gRPC server listening")
	return g.srv.Serve(lis)
}

// SetTranslatorServing updates the translator health entry.
func (g *GRPCServer) SetTranslatorServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(TranslatorHealthService, status)
}

// WatchTranslator probes checker every interval until ctx is done.
// A nil checker marks the translator NOT_SERVING once and returns.
func (g *GRPCServer) WatchTranslator(ctx context.Context, checker HealthChecker, interval time.Duration) {
	if checker == nil {
		g.SetTranslatorServing(false)
		return
	}

	probe := func() {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		err := checker.CheckHealth(pctx)
		if err != nil {
			g.logger.WithError(err).Debug("Translator health probe failed")
		}
		g.SetTranslatorServing(err == nil)
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			probe()
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown flips health to NOT_SERVING and stops gracefully, forcing a stop when ctx expires.
func (g *GRPCServer) Shutdown(ctx context.Context) {
	g.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		g.srv.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		g.logger.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		g.logger.Warn("Graceful shutdown timeout, forcing stop...")
		g.srv.Stop()
	}
}
