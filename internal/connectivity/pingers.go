package connectivity

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/facesaas-client/internal/transport"
)

// HTTPPinger checks liveness with GET /health through the shared transport.
type HTTPPinger struct {
	transport *transport.Transport
	path      string
}

// NewHTTPPinger returns a pinger for the given health path ("/health" when
// empty).
func NewHTTPPinger(t *transport.Transport, path string) *HTTPPinger {
	if path == "" {
		path = "/health"
	}
	return &HTTPPinger{transport: t, path: path}
}

// Ping succeeds on any 2xx response.
func (h *HTTPPinger) Ping(ctx context.Context) error {
	_, err := h.transport.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   h.path,
		Public: true,
	})
	return err
}

// GRPCPinger checks liveness with the standard gRPC health protocol.
type GRPCPinger struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	service string
}

// DialGRPCPinger connects lazily to addr. service is the health service name;
// empty means the server as a whole.
func DialGRPCPinger(ctx context.Context, addr, service string) (*GRPCPinger, error) {
	conn, err := grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial health endpoint %s: %w", addr, err)
	}
	return &GRPCPinger{conn: conn, client: healthpb.NewHealthClient(conn), service: service}, nil
}

// Ping succeeds when the service reports SERVING.
func (g *GRPCPinger) Ping(ctx context.Context) error {
	resp, err := g.client.Check(ctx, &healthpb.HealthCheckRequest{Service: g.service})
	if err != nil {
		return err
	}
	if status := resp.GetStatus(); status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("health status %s", status)
	}
	return nil
}

// Close releases the connection.
func (g *GRPCPinger) Close() error {
	return g.conn.Close()
}
