package rpcpool

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc/credentials"
)

// Options configures a Pool at construction time, collecting the handful of
// knobs that are immutable for the lifetime of a Pool. The
// Smart*/HealthCheck*/ChannelTTL/Backoff/Jitter fields default to the
// package's wire-visible constants and only need overriding in tests that
// want the probe/eviction/backoff timing compressed.
type Options struct {
	GRPCTimeout    time.Duration
	ConnectTimeout time.Duration
	PoolSize       int
	TLSConfig      credentials.TransportCredentials // nil => insecure
	Logger         *Logger

	SmartConnectInterval time.Duration
	HealthCheckTimeout   time.Duration
	ChannelTTL           time.Duration
	Backoff              time.Duration
	JitterMax            time.Duration

	dial dialer // test-only hook; production callers always get newGRPCDialer
}

// Pool is the top-level TransportChannelPool: it owns a map from peer
// Address to dynamicChannelPool, plus the retry/probe engine that sits on
// top of it. It is safe for concurrent use by many goroutines.
type Pool struct {
	mu        sync.RWMutex
	addrPools map[Address]*dynamicChannelPool

	poolSize       int
	grpcTimeout    time.Duration
	connectTimeout time.Duration
	dial           dialer
	logger         *Logger
	stats          stats

	smartConnectInterval time.Duration
	healthCheckTimeout   time.Duration
	channelTTL           time.Duration
	backoff              time.Duration
	jitterMax            time.Duration
}

// New constructs a Pool with explicit options.
func New(opts Options) *Pool {
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.GRPCTimeout <= 0 {
		opts.GRPCTimeout = DefaultGRPCTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.SmartConnectInterval <= 0 {
		opts.SmartConnectInterval = SmartConnectInterval
	}
	if opts.HealthCheckTimeout <= 0 {
		opts.HealthCheckTimeout = HealthCheckTimeout
	}
	if opts.ChannelTTL <= 0 {
		opts.ChannelTTL = ChannelTTL
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.JitterMax <= 0 {
		opts.JitterMax = jitterMax
	}
	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(LoggingConfig{Level: "info", Format: "json"})
	}

	d := opts.dial
	if d == nil {
		d = newGRPCDialer(opts.TLSConfig)
	}

	return &Pool{
		addrPools:            make(map[Address]*dynamicChannelPool),
		poolSize:             opts.PoolSize,
		grpcTimeout:          opts.GRPCTimeout,
		connectTimeout:       opts.ConnectTimeout,
		dial:                 d,
		logger:               logger,
		smartConnectInterval: opts.SmartConnectInterval,
		healthCheckTimeout:   opts.HealthCheckTimeout,
		channelTTL:           opts.ChannelTTL,
		backoff:              opts.Backoff,
		jitterMax:            opts.JitterMax,
	}
}

// NewDefault constructs a Pool using every wire-visible default.
func NewDefault() *Pool {
	return New(Options{})
}

// Stats returns a snapshot of the pool's ambient counters.
func (p *Pool) Stats() Stats {
	return p.stats.snapshot()
}

// DropPool forcibly evicts the per-address pool for addr, closing every
// channel it holds. A second call for the same address is a no-op. Any
// errors closing individual slots are combined and returned, not swallowed.
func (p *Pool) DropPool(addr Address) error {
	p.mu.Lock()
	dp, ok := p.addrPools[addr]
	delete(p.addrPools, addr)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return dp.closeAll()
}

// DropChannel evicts a specific channel from its address's pool.
func (p *Pool) DropChannel(addr Address, item *CountedItem) {
	p.mu.RLock()
	dp, ok := p.addrPools[addr]
	p.mu.RUnlock()

	if ok {
		dp.dropChannel(item)
		p.stats.channelsEvicted.Add(1)
	} else {
		item.Release()
	}
}

// getPooledChannel returns a channel from an already-existing pool for
// addr, or (nil, false) if no pool exists yet for that address. Only holds
// the read lock, so concurrent Choose calls for already-initialized
// addresses never contend with each other.
func (p *Pool) getPooledChannel(ctx context.Context, addr Address) (*CountedItem, bool, error) {
	p.mu.RLock()
	dp, ok := p.addrPools[addr]
	p.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	item, err := dp.choose(ctx)
	return item, true, err
}

// initPoolForAddr double-checks for an existing pool under the write lock
// before dialing, so two concurrent first-callers for a brand-new address
// never construct duplicate dynamicChannelPools.
func (p *Pool) initPoolForAddr(ctx context.Context, addr Address) (*CountedItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if dp, ok := p.addrPools[addr]; ok {
		return dp.choose(ctx)
	}

	dp, err := newDynamicChannelPool(ctx, addr, p.connectTimeout, p.grpcTimeout, p.dial, p.poolSize)
	if err != nil {
		return nil, err
	}
	p.stats.channelsDialed.Add(1)

	item, err := dp.choose(ctx)
	if err != nil {
		dp.closeAll()
		return nil, err
	}
	p.addrPools[addr] = dp
	return item, nil
}

// getOrCreatePooledChannel is the channel-acquisition path used before the
// three-way race: try the read-locked fast path first, fall back to the
// double-checked write-locked construction path.
func (p *Pool) getOrCreatePooledChannel(ctx context.Context, addr Address) (*CountedItem, error) {
	item, found, err := p.getPooledChannel(ctx, addr)
	if found {
		return item, err
	}
	return p.initPoolForAddr(ctx, addr)
}
