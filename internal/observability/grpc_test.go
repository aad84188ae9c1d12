package observability

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

func TestGRPCHealth_ReportsFeedState(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := NewGRPCHealth(zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- g.Serve(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		callCtx, callCancel := context.WithTimeout(ctx, 2*time.Second)
		defer callCancel()
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: FeedServiceName})
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING before a reader attaches, got %s", got)
	}

	g.SetServing(true)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING, got %s", got)
	}

	// Overall server health is reported under the empty service name
	callCtx, callCancel := context.WithTimeout(ctx, 2*time.Second)
	resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{})
	callCancel()
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	want := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}
	if !proto.Equal(resp, want) {
		t.Errorf("Expected %v, got %v", want, resp)
	}

	callCtx, callCancel = context.WithTimeout(ctx, 2*time.Second)
	_, err = client.Check(callCtx, &healthpb.HealthCheckRequest{Service: "audiofeed.Unknown"})
	callCancel()
	if status.Code(err) != codes.NotFound {
		t.Errorf("Expected NotFound for an unknown service, got %v", err)
	}

	g.SetServing(false)
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING after the reader left, got %s", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
