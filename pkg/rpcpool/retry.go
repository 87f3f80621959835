package rpcpool

import (
	"context"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CallFunc is the caller-supplied closure executed under the pool's retry
// policy. It must be safe to invoke more than once across retries (it is
// Go's analogue of the source's `Fn`, not `FnOnce`) and the pool never
// inspects its return payload beyond the error.
type CallFunc[T any] func(ctx context.Context, ch Channel) (T, error)

// WithChannel executes f against a channel to addr under the default retry
// budget (DefaultRetries) and the default per-attempt timeout
// (grpc_timeout + connect_timeout).
func WithChannel[T any](ctx context.Context, p *Pool, addr Address, f CallFunc[T]) (T, error) {
	return WithChannelTimeout(ctx, p, addr, f, nil, DefaultRetries)
}

// WithChannelTimeout executes f against a channel to addr, retrying up to
// retries additional times. timeout, if non-nil, overrides the per-attempt
// budget (which also caps backoff; see the actionRetryWithBackoff case below).
func WithChannelTimeout[T any](ctx context.Context, p *Pool, addr Address, f CallFunc[T], timeout *time.Duration, retries int) (T, error) {
	var zero T

	ctx = WithTraceID(ctx)
	log := p.logger.WithAddress(addr)

	maxTimeout := p.grpcTimeout + p.connectTimeout
	if timeout != nil {
		maxTimeout = *timeout
	}

	retriesLeft := retries
	attemptNum := 0

	for {
		p.stats.requestsTotal.Add(1)
		log.WithAttempt(attemptNum).DebugContext(ctx, "attempting call")

		value, failure, ok := runAttempt(ctx, p, addr, f, maxTimeout)
		if ok {
			p.stats.requestsSucceeded.Add(1)
			return value, nil
		}

		action := classifyFailure(addr, failure)

		if action.kind == actionFail {
			p.stats.requestsFailed.Add(1)
			log.WithAttempt(attemptNum).ErrorContext(ctx, "call failed without retry", "error", action.fallback.Err())
			return zero, fromClosure(action.fallback)
		}

		backoff := time.Duration(0)
		switch action.kind {
		case actionRetryWithBackoff:
			computed := p.backoff*time.Duration(1<<uint(attemptNum)) + p.jitter()
			if computed > maxTimeout {
				p.stats.requestsFailed.Add(1)
				return zero, fromClosure(action.fallback)
			}
			backoff = computed
		case actionRetryOnce:
			if retriesLeft > 1 {
				retriesLeft = 1
			}
		case actionRetryImmediately:
			// backoff stays zero
		}

		attemptNum++
		if retriesLeft == 0 {
			p.stats.requestsFailed.Add(1)
			return zero, fromClosure(action.fallback)
		}
		retriesLeft--
		p.stats.retries.Add(1)

		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				p.stats.requestsFailed.Add(1)
				return zero, fromClosure(status.FromContextError(ctx.Err()))
			case <-timer.C:
			}
		}
	}
}

// jitter returns a uniform random duration in [0, p.jitterMax).
func (p *Pool) jitter() time.Duration {
	return time.Duration(rand.Int64N(int64(p.jitterMax)))
}

// runAttempt performs one pass through the three-way race (user call vs.
// health probe vs. overall timeout) and the post-attempt channel hygiene
// that must run before any backoff sleep.
func runAttempt[T any](ctx context.Context, p *Pool, addr Address, f CallFunc[T], maxTimeout time.Duration) (T, requestFailure, bool) {
	var zero T

	item, err := p.getOrCreatePooledChannel(ctx, addr)
	if err != nil {
		return zero, connectionFailure(err), false
	}

	attemptCtx, cancel := context.WithCancel(ctx)

	type userResult struct {
		val T
		err error
	}
	userCh := make(chan userResult, 1)
	go func() {
		v, err := f(attemptCtx, item.Item().Clone())
		userCh <- userResult{val: v, err: err}
	}()

	probeCh := make(chan requestFailure, 1)
	go func() {
		probeCh <- p.checkConnectability(attemptCtx, addr)
	}()

	timer := time.NewTimer(maxTimeout)

	var (
		value   T
		failure requestFailure
		success bool
	)

	select {
	case res := <-userCh:
		if res.err == nil {
			item.ReportSuccess()
			value = res.val
			success = true
		} else {
			failure = requestStatusFailure(status.Convert(res.err))
		}
	case probeFailure := <-probeCh:
		failure = probeFailure
	case <-timer.C:
		failure = requestStatusFailure(status.Newf(codes.DeadlineExceeded,
			"Timeout %dms reached for uri: %s", maxTimeout.Milliseconds(), addr))
	}

	timer.Stop()
	cancel() // abandon whichever of the other two branches is still running

	if success {
		item.Release()
		return value, requestFailure{}, true
	}

	// Post-attempt channel hygiene, run before any backoff sleep so a
	// replaced peer can be reconnected on the very next attempt.
	if item.LastSuccessAge() > p.channelTTL {
		p.DropChannel(addr, item)
	} else {
		item.Release()
	}

	return zero, failure, false
}

type retryActionKind int

const (
	actionFail retryActionKind = iota
	actionRetryImmediately
	actionRetryWithBackoff
	actionRetryOnce
)

type retryAction struct {
	kind     retryActionKind
	fallback *status.Status
}

// classifyFailure maps one attempt's failure to a RetryAction.
func classifyFailure(addr Address, f requestFailure) retryAction {
	if f.healthKind != healthNone {
		switch f.healthKind {
		case healthNoChannel:
			return retryAction{kind: actionFail, fallback: status.Newf(codes.Unavailable,
				"Peer %s is not available", addr)}
		case healthConnectionError:
			return retryAction{kind: actionRetryImmediately, fallback: status.Newf(codes.Unavailable,
				"Failed to connect to %s, error: %v", addr, f.healthErr)}
		case healthRequestError:
			return retryAction{kind: actionRetryWithBackoff, fallback: f.healthStat}
		}
	}

	if f.connErr != nil {
		return retryAction{kind: actionRetryWithBackoff, fallback: status.Newf(codes.Unavailable,
			"Failed to connect to %s, error: %v", addr, f.connErr)}
	}

	s := f.reqStatus
	switch s.Code() {
	case codes.Cancelled, codes.Unavailable:
		return retryAction{kind: actionRetryWithBackoff, fallback: s}
	case codes.Internal:
		return retryAction{kind: actionRetryOnce, fallback: s}
	default:
		return retryAction{kind: actionFail, fallback: s}
	}
}
