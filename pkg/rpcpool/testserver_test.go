package rpcpool

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const testBufSize = 1024 * 1024

const (
	testConnectTimeout = 200 * time.Millisecond
	testCallTimeout    = 200 * time.Millisecond
)

// scriptedHealthServer implements grpc_health_v1.HealthServer with a
// caller-supplied per-call handler, letting tests script a flapping peer
// without a real network.
type scriptedHealthServer struct {
	grpc_health_v1.UnimplementedHealthServer

	mu      sync.Mutex
	calls   int
	handler func(call int) (*grpc_health_v1.HealthCheckResponse, error)
}

func newScriptedHealthServer(handler func(call int) (*grpc_health_v1.HealthCheckResponse, error)) *scriptedHealthServer {
	return &scriptedHealthServer{handler: handler}
}

func (s *scriptedHealthServer) Check(ctx context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	s.mu.Unlock()
	return s.handler(call)
}

func (s *scriptedHealthServer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// setHandler swaps the scripted response function and resets the call
// counter, letting a test change a live server's behavior (e.g. to
// simulate a peer starting to fail after a healthy warm-up) without tearing
// down and redialing the underlying connection.
func (s *scriptedHealthServer) setHandler(handler func(call int) (*grpc_health_v1.HealthCheckResponse, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	s.calls = 0
}

func alwaysServing(int) (*grpc_health_v1.HealthCheckResponse, error) {
	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}

// bufconnDialer is a test-only dialer substituting grpcDialer's real network
// dial for an in-process bufconn listener keyed by Address, so tests can
// simulate a dead peer (no listener, or a killed one) without sockets.
type bufconnDialer struct {
	mu        sync.Mutex
	listeners map[Address]*bufconn.Listener
}

func newBufconnDialer() *bufconnDialer {
	return &bufconnDialer{listeners: make(map[Address]*bufconn.Listener)}
}

// serve registers srv as the peer behind addr for the lifetime of the test.
func (d *bufconnDialer) serve(t *testing.T, addr Address, srv grpc_health_v1.HealthServer) {
	t.Helper()
	lis := bufconn.Listen(testBufSize)

	d.mu.Lock()
	d.listeners[addr] = lis
	d.mu.Unlock()

	s := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)
}

func (d *bufconnDialer) Dial(ctx context.Context, addr Address, connectTimeout, _ time.Duration) (Channel, error) {
	d.mu.Lock()
	lis, ok := d.listeners[addr]
	d.mu.Unlock()
	if !ok {
		return Channel{}, fmt.Errorf("failed to dial %s: peer not reachable", addr)
	}

	dialFunc := func(context.Context, string) (net.Conn, error) { return lis.Dial() }

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialFunc),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return Channel{}, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return Channel{conn: conn}, nil
		}
		if !conn.WaitForStateChange(waitCtx, state) {
			_ = conn.Close()
			return Channel{}, fmt.Errorf("failed to connect to %s within %s: %w", addr, connectTimeout, waitCtx.Err())
		}
	}
}

// newTestPool builds a Pool wired to a fresh bufconnDialer with every timing
// knob compressed, so retry/backoff/TTL/probe tests run in milliseconds.
func newTestPool(t *testing.T, d *bufconnDialer) *Pool {
	t.Helper()
	p := New(Options{
		PoolSize:             2,
		GRPCTimeout:          200 * time.Millisecond,
		ConnectTimeout:       200 * time.Millisecond,
		SmartConnectInterval: 5 * time.Millisecond,
		HealthCheckTimeout:   20 * time.Millisecond,
		ChannelTTL:           15 * time.Millisecond,
		Backoff:              2 * time.Millisecond,
		JitterMax:            1 * time.Millisecond,
		Logger:               NewLogger(LoggingConfig{Level: "error", Format: "text"}),
		dial:                 d,
	})
	t.Cleanup(func() {
		p.mu.RLock()
		pools := make([]*dynamicChannelPool, 0, len(p.addrPools))
		for _, dp := range p.addrPools {
			pools = append(pools, dp)
		}
		p.mu.RUnlock()
		for _, dp := range pools {
			dp.closeAll()
		}
	})
	return p
}

// checkHealth is the CallFunc used throughout the test suite: it exercises
// the standard health RPC through the channel exactly like a real service
// client would, so WithChannel's generics and retry plumbing are driven
// end-to-end rather than through a stub.
func checkHealth(ctx context.Context, ch Channel) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	resp, err := grpc_health_v1.NewHealthClient(ch.ClientConn()).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return 0, err
	}
	return resp.Status, nil
}
