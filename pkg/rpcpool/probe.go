package rpcpool

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// checkConnectability is the "smart reconnect" health probe raced against
// every user call. It is deliberately patient: a SmartConnectInterval
// warm-up means short calls never pay probe cost, and a single slow health
// RPC does not by itself evict a healthy pool; only sustained silence (no
// success in HealthCheckTimeout, from *any* caller sharing the channel)
// does.
func (p *Pool) checkConnectability(ctx context.Context, addr Address) requestFailure {
	timer := time.NewTimer(p.smartConnectInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return connectionFailure(ctx.Err())
		case <-timer.C:
		}

		item, found, err := p.getPooledChannel(ctx, addr)
		if !found {
			return healthNoChannelFailure()
		}
		if err != nil {
			return healthConnectionFailure(err)
		}

		p.stats.healthProbesRun.Add(1)
		outcome := p.raceHealthCheck(ctx, item)
		item.Release()

		switch outcome.kind {
		case healthOutcomeOK:
			// keep watching
		case healthOutcomeTimeout:
			if item.LastSuccessAge() > p.healthCheckTimeout {
				return healthRequestFailure(status.Newf(codes.DeadlineExceeded,
					"Healthcheck timeout %dms exceeded", p.healthCheckTimeout.Milliseconds()))
			}
			// some other concurrent call succeeded in the window; peer is
			// not demonstrably dead, keep watching
		case healthOutcomeError:
			return healthRequestFailure(outcome.status)
		}

		timer.Reset(p.smartConnectInterval)
	}
}

type healthOutcomeKind int

const (
	healthOutcomeOK healthOutcomeKind = iota
	healthOutcomeTimeout
	healthOutcomeError
)

type healthOutcome struct {
	kind   healthOutcomeKind
	status *status.Status
}

// raceHealthCheck issues the health RPC racing a HealthCheckTimeout sleep,
// and reports success back onto item so LastSuccessAge reflects it for any
// caller sharing the slot.
func (p *Pool) raceHealthCheck(ctx context.Context, item *CountedItem) healthOutcome {
	hctx, cancel := context.WithTimeout(ctx, p.healthCheckTimeout)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- item.Item().healthCheck(hctx)
	}()

	select {
	case err := <-resultCh:
		if err == nil {
			item.ReportSuccess()
			return healthOutcome{kind: healthOutcomeOK}
		}
		return healthOutcome{kind: healthOutcomeError, status: status.Convert(err)}
	case <-hctx.Done():
		return healthOutcome{kind: healthOutcomeTimeout}
	}
}
