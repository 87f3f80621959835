package rpcpool

import (
	"fmt"

	"google.golang.org/grpc/status"
)

// RequestError is the error type returned to callers of WithChannel and
// WithChannelTimeout. Status is always non-nil: the last status observed,
// whether it came from the closure itself or was synthesized by the retry
// engine (deadline exceeded, unavailable, peer not available).
type RequestError struct {
	Status *status.Status
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("transport channel pool: %s", e.Status.Err())
}

func (e *RequestError) Unwrap() error {
	return e.Status.Err()
}

func fromClosure(s *status.Status) *RequestError {
	return &RequestError{Status: s}
}

// requestFailure is the internal, per-attempt failure classification. It is
// never returned to callers directly; the retry classifier in retry.go
// turns it into either another attempt or a *RequestError.
type requestFailure struct {
	// exactly one of the following is set
	connErr    error          // RequestFailure::RequestConnection
	reqStatus  *status.Status // RequestFailure::RequestError
	healthKind healthCheckKind
	healthErr  error          // set when healthKind == healthConnectionError
	healthStat *status.Status // set when healthKind == healthRequestError
}

type healthCheckKind int

const (
	healthNone healthCheckKind = iota
	healthNoChannel
	healthConnectionError
	healthRequestError
)

func connectionFailure(err error) requestFailure {
	return requestFailure{connErr: err}
}

func requestStatusFailure(s *status.Status) requestFailure {
	return requestFailure{reqStatus: s}
}

func healthNoChannelFailure() requestFailure {
	return requestFailure{healthKind: healthNoChannel}
}

func healthConnectionFailure(err error) requestFailure {
	return requestFailure{healthKind: healthConnectionError, healthErr: err}
}

func healthRequestFailure(s *status.Status) requestFailure {
	return requestFailure{healthKind: healthRequestError, healthStat: s}
}
