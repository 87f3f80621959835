package rpcpool

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Channel is an opaque, clonable handle to a multiplexed transport
// connection. Cloning is cheap: clones share the underlying *grpc.ClientConn
// and therefore the same HTTP/2 connection and its in-flight streams.
type Channel struct {
	conn *grpc.ClientConn
}

// Clone returns an equivalent handle sharing the same underlying connection.
func (c Channel) Clone() Channel {
	return Channel{conn: c.conn}
}

// ClientConn exposes the underlying connection for use with generated gRPC
// clients, e.g. pb.NewMyServiceClient(ch.ClientConn()).
func (c Channel) ClientConn() *grpc.ClientConn {
	return c.conn
}

// healthClient builds a client for the standard grpc.health.v1.Health
// service against this channel, used by the smart-reconnect probe.
func (c Channel) healthClient() grpc_health_v1.HealthClient {
	return grpc_health_v1.NewHealthClient(c.conn)
}

// healthCheck issues the standard empty-request health RPC.
func (c Channel) healthCheck(ctx context.Context) error {
	_, err := c.healthClient().Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	return err
}
