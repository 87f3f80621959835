// Package rpcpool implements a resilient RPC transport channel pool.
//
// It multiplexes calls over a small set of persistent gRPC connections per
// peer address, hides transient failures behind an adaptive retry and
// health-probing policy, and bounds worst-case latency even when a peer
// goes silently unresponsive. It is not a load balancer: every call targets
// a single peer address, chosen by the caller.
package rpcpool
