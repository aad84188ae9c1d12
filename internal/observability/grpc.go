package observability

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// FeedServiceName is the gRPC health service name reporting the feed writer
const FeedServiceName = "audiofeed.Feed"

// GRPCHealth exposes the standard gRPC health checking protocol so
// orchestrators can check whether the encoder is attached to the feed.
type GRPCHealth struct {
	server *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// NewGRPCHealth creates a health server reporting NOT_SERVING for the feed
// until SetServing(true) is called.
func NewGRPCHealth(logger zerolog.Logger) *GRPCHealth {
	h := health.NewServer()
	h.SetServingStatus(FeedServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, h)

	return &GRPCHealth{
		server: server,
		health: h,
		logger: logger,
	}
}

// SetServing updates the feed service status
func (g *GRPCHealth) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(FeedServiceName, status)
}

// ListenAndServe serves on addr until ctx is done
func (g *GRPCHealth) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return g.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done
func (g *GRPCHealth) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		g.health.Shutdown()
		g.server.GracefulStop()
	}()

	g.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health service listening")
	if err := g.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC health server failed: %w", err)
	}
	return nil
}
