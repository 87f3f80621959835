package rpcpool

import "time"

// Wire-visible defaults, unchanged from the source.
const (
	DefaultPoolSize       = 2
	DefaultGRPCTimeout    = 60 * time.Second
	DefaultConnectTimeout = 2 * time.Second
	DefaultRetries        = 2
	DefaultBackoff        = 100 * time.Millisecond

	// SmartConnectInterval is how long the health probe waits before its
	// first check, so it never interferes with calls that complete
	// quickly.
	SmartConnectInterval = 1 * time.Second

	// HealthCheckTimeout bounds a single health-check RPC raced inside the
	// probe loop.
	HealthCheckTimeout = 2 * time.Second

	// ChannelTTL is how long a channel may go without a reported success
	// before post-attempt hygiene evicts it.
	ChannelTTL = 5 * time.Second

	// jitterMax is the exclusive upper bound of the uniform jitter added to
	// exponential backoff.
	jitterMax = 100 * time.Millisecond

	// unlimitedConnectionsPerChannel documents parity with the source's
	// MAX_CONNECTIONS_PER_CHANNEL = usize::MAX: gRPC-Go's ClientConn has no
	// per-connection stream cap to set, HTTP/2 multiplexing is unbounded by
	// default, so this constant is not threaded through to any dial option
	// and exists purely as a marker of that equivalence.
	unlimitedConnectionsPerChannel = -1
)
