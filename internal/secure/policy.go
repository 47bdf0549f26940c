package secure

import (
	"context"
	"net/http"
	"slices"
	"sync/atomic"
	"time"
)

// DefaultBackoff is the fixed delay before retrying a throttled request.
const DefaultBackoff = 60 * time.Second

// RetryPolicy decides which statuses are retried and how long to wait.
type RetryPolicy struct {
	// Backoff is the fixed delay inserted before each retry.
	Backoff time.Duration
	// MaxRetries caps consecutive retries of one request. Zero retries forever.
	MaxRetries int
	// RetryOn lists the retryable status codes.
	RetryOn []int
}

// DefaultRetryPolicy retries 429 and 504 forever with a 60 second backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Backoff: DefaultBackoff,
		RetryOn: []int{http.StatusTooManyRequests, http.StatusGatewayTimeout},
	}
}

// Retryable reports whether the status should be retried.
func (p RetryPolicy) Retryable(status int) bool {
	return slices.Contains(p.RetryOn, status)
}

// exhausted reports whether another retry would exceed the cap.
func (p RetryPolicy) exhausted(retries int) bool {
	return p.MaxRetries > 0 && retries > p.MaxRetries
}

// Clock abstracts sleeping so tests can skip real delays.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock sleeps on a timer and returns early with ctx.Err() on cancellation.
func RealClock() Clock { return realClock{} }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Observer receives notifications about retry decisions. Used for progress output.
type Observer interface {
	OnBackoff(status int, reason string, wait time.Duration)
	OnRetry()
}

// Stats counts requests and retried statuses for one session.
type Stats struct {
	requests    atomic.Int64
	throttled   atomic.Int64
	gatewayTime atomic.Int64
	otherRetry  atomic.Int64
}

// Requests returns the number of HTTP exchanges attempted.
func (s *Stats) Requests() int64 { return s.requests.Load() }

// Retries returns how many times the given status caused a retry.
func (s *Stats) Retries(status int) int64 {
	switch status {
	case http.StatusTooManyRequests:
		return s.throttled.Load()
	case http.StatusGatewayTimeout:
		return s.gatewayTime.Load()
	default:
		return s.otherRetry.Load()
	}
}

func (s *Stats) recordRetry(status int) {
	switch status {
	case http.StatusTooManyRequests:
		s.throttled.Add(1)
	case http.StatusGatewayTimeout:
		s.gatewayTime.Add(1)
	default:
		s.otherRetry.Add(1)
	}
}

func retryReason(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "API throttling"
	case http.StatusGatewayTimeout:
		return "Gateway Timeout"
	default:
		return http.StatusText(status)
	}
}
