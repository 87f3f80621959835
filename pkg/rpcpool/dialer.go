package rpcpool

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// dialer is the pluggable channel factory consumed by dynamicChannelPool:
// something that turns an Address into a Channel. Tests substitute a dialer
// pointed at an in-process bufconn listener instead of a real network peer.
type dialer interface {
	Dial(ctx context.Context, addr Address, connectTimeout, callTimeout time.Duration) (Channel, error)
}

// grpcDialer is the production dialer: it dials via grpc.NewClient and
// blocks (bounded by connectTimeout) until the connection reaches
// connectivity.Ready, so construction performs the initial connect and
// fails with a transport error if no channel can be established.
// grpc.NewClient itself is lazy and never blocks, so the wait loop below is
// what actually enforces that.
type grpcDialer struct {
	tlsConfig      credentials.TransportCredentials // nil => insecure
	dialOptions    []grpc.DialOption
	keepaliveTime  time.Duration
	keepaliveToout time.Duration
}

func newGRPCDialer(tlsConfig credentials.TransportCredentials) *grpcDialer {
	return &grpcDialer{
		tlsConfig:      tlsConfig,
		keepaliveTime:  10 * time.Second,
		keepaliveToout: 3 * time.Second,
	}
}

func (d *grpcDialer) Dial(ctx context.Context, addr Address, connectTimeout, callTimeout time.Duration) (Channel, error) {
	creds := d.tlsConfig
	if creds == nil {
		creds = insecure.NewCredentials()
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                d.keepaliveTime,
			Timeout:             d.keepaliveToout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.WaitForReady(false)),
	}, d.dialOptions...)

	conn, err := grpc.NewClient(addr.Target(), opts...)
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
