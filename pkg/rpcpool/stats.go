package rpcpool

import "sync/atomic"

// stats tracks ambient pool-wide counters. The pool does not export these
// anywhere itself; Stats() just hands callers a snapshot to wire into
// whatever metrics exporter they use.
type stats struct {
	requestsTotal     atomic.Uint64
	requestsSucceeded atomic.Uint64
	requestsFailed    atomic.Uint64
	retries           atomic.Uint64
	channelsDialed    atomic.Uint64
	channelsEvicted   atomic.Uint64
	healthProbesRun   atomic.Uint64
}

// Stats is a point-in-time snapshot of Pool activity.
type Stats struct {
	RequestsTotal     uint64
	RequestsSucceeded uint64
	RequestsFailed    uint64
	Retries           uint64
	ChannelsDialed    uint64
	ChannelsEvicted   uint64
	HealthProbesRun   uint64
}

func (s *stats) snapshot() Stats {
	return Stats{
		RequestsTotal:     s.requestsTotal.Load(),
		RequestsSucceeded: s.requestsSucceeded.Load(),
		RequestsFailed:    s.requestsFailed.Load(),
		Retries:           s.retries.Load(),
		ChannelsDialed:    s.channelsDialed.Load(),
		ChannelsEvicted:   s.channelsEvicted.Load(),
		HealthProbesRun:   s.healthProbesRun.Load(),
	}
}
