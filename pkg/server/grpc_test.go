package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type stubChecker struct{ err error }

func (c stubChecker) CheckHealth(ctx context.Context) error { return c.err }

func startGRPC(t *testing.T) (*GRPCServer, grpc_health_v1.HealthClient) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	g := NewGRPCServer(quietLogger())
	go g.Serve(lis)

	conn, err := grpc.Dial(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		g.Shutdown(ctx)
	})
	return g, grpc_health_v1.NewHealthClient(conn)
}

func checkStatus(t *testing.T, client grpc_health_v1.HealthClient, svc string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: svc})
	if err != nil {
		t.Fatalf("Check(%q) error = %v", svc, err)
	}
	return resp.Status
}

func TestGRPCServer_Health(t *testing.T) {
	g, client := startGRPC(t)

	if got := checkStatus(t, client, ""); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("overall status = %v, want SERVING", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g.WatchTranslator(ctx, stubChecker{err: errors.New("down")}, time.Hour)
	if got := checkStatus(t, client, TranslatorHealthService); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("translator status = %v, want NOT_SERVING", got)
	}

	g.WatchTranslator(ctx, stubChecker{}, time.Hour)
	if got := checkStatus(t, client, TranslatorHealthService); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("translator status = %v, want SERVING", got)
	}

	g.WatchTranslator(ctx, nil, time.Hour)
	if got := checkStatus(t, client, TranslatorHealthService); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("translator status = %v, want NOT_SERVING without a translator", got)
	}
}
