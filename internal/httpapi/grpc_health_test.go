package httpapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, hs *HealthServer) (*grpc.ClientConn, func()) {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	hs.Register(server)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}
	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	cleanup := func() {
		server.GracefulStop()
		_ = conn.Close()
		_ = listener.Close()
	}
	return conn, cleanup
}

func TestHealthServerServing(t *testing.T) {
	hs := NewHealthServer(ReadyProbe{"db": CheckFunc(func(context.Context) error { return nil })})
	conn, cleanup := startBufGRPC(t, hs)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if got := hs.Refresh(ctx); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected refresh status %v", got)
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: serviceName})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected status: %v", resp.GetStatus())
	}
}

func TestHealthServerNotServing(t *testing.T) {
	hs := NewHealthServer(ReadyProbe{"db": CheckFunc(func(context.Context) error { return errors.New("boom") })})
	conn, cleanup := startBufGRPC(t, hs)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hs.Refresh(ctx)
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("unexpected status: %v", resp.GetStatus())
	}
}
