// Package secure is the HTTP client for the Secure REST API. A Session owns
// the connection pool, bearer token, retry policy and counters for one run;
// every request goes through the same retry state machine.
package secure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/buemura/sectools/pkg/types"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single HTTP exchange.
const DefaultTimeout = 60 * time.Second

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 4096

// Config holds everything needed to build a Session.
type Config struct {
	Endpoint types.Endpoint
	Token    string
	Timeout  time.Duration
	Policy   RetryPolicy
	// RequestsPerSecond paces requests when > 0.
	RequestsPerSecond float64

	HTTPClient *http.Client
	Clock      Clock
	Observer   Observer
	Logger     *slog.Logger
}

// Session issues authenticated requests against one Secure API endpoint.
// The token is fixed at construction and applied per request.
type Session struct {
	base     *url.URL
	token    string
	client   *http.Client
	policy   RetryPolicy
	clock    Clock
	limiter  *rate.Limiter
	observer Observer
	logger   *slog.Logger
	stats    *Stats
}

// NewSession validates cfg and returns a ready Session.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Endpoint.Host == "" {
		return nil, fmt.Errorf("secure URL authority is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("API token is required")
	}

	base, err := url.Parse(cfg.Endpoint.BaseURL() + "/")
	if err != nil {
		return nil, fmt.Errorf("building base URL: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	policy := cfg.Policy
	if policy.RetryOn == nil {
		policy.RetryOn = DefaultRetryPolicy().RetryOn
	}

	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Session{
		base:     base,
		token:    cfg.Token,
		client:   client,
		policy:   policy,
		clock:    clock,
		observer: cfg.Observer,
		logger:   logger,
		stats:    &Stats{},
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return s, nil
}

// Stats returns the session's request and retry counters.
func (s *Session) Stats() *Stats { return s.stats }

// Token returns the bearer token the session authenticates with.
func (s *Session) Token() string { return s.token }

// resolve turns a path (optionally with query) or absolute URL into a full URL.
func (s *Session) resolve(ref string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimPrefix(ref, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", ref, err)
	}
	full := s.base.ResolveReference(u)
	if len(query) > 0 {
		q := full.Query()
		for k, vs := range query {
			q.Del(k)
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		full.RawQuery = q.Encode()
	}
	return full.String(), nil
}

type requestState int

const (
	stateRequesting requestState = iota
	stateBackoff
	stateDone
	stateFatal
)

// do sends method to rawURL until it succeeds, fails fatally, or ctx ends.
// consume is called with the body of the 200 response.
func (s *Session) do(ctx context.Context, method, rawURL string, consume func(io.Reader) error) error {
	var (
		state   = stateRequesting
		retries int
		status  int
		failure error
	)

	for {
		switch state {
		case stateRequesting:
			if err := ctx.Err(); err != nil {
				failure = err
				state = stateFatal
				continue
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					failure = err
					state = stateFatal
					continue
				}
			}

			var err error
			status, err = s.exchange(ctx, method, rawURL, consume)
			switch {
			case err != nil:
				failure = err
				state = stateFatal
			case status == http.StatusOK:
				state = stateDone
			case s.policy.Retryable(status):
				s.stats.recordRetry(status)
				retries++
				if s.policy.exhausted(retries) {
					failure = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, retries,
						&StatusError{Method: method, URL: rawURL, StatusCode: status})
					state = stateFatal
					continue
				}
				state = stateBackoff
			default:
				// exchange returns a StatusError for every other status.
				failure = fmt.Errorf("unhandled status %d", status)
				state = stateFatal
			}

		case stateBackoff:
			if err := ctx.Err(); err != nil {
				failure = err
				state = stateFatal
				continue
			}
			reason := retryReason(status)
			s.logger.Info("backing off before retry",
				"status", status, "reason", reason, "wait", s.policy.Backoff, "url", rawURL)
			if s.observer != nil {
				s.observer.OnBackoff(status, reason, s.policy.Backoff)
			}
			if err := s.clock.Sleep(ctx, s.policy.Backoff); err != nil {
				failure = err
				state = stateFatal
				continue
			}
			if s.observer != nil {
				s.observer.OnRetry()
			}
			s.logger.Debug("retrying request", "method", method, "url", rawURL)
			state = stateRequesting

		case stateDone:
			return nil

		case stateFatal:
			return failure
		}
	}
}

// exchange performs one HTTP round trip. It returns the status code and,
// for non-retryable failures, a typed error.
func (s *Session) exchange(ctx context.Context, method, rawURL string, consume func(io.Reader) error) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/json")

	s.stats.requests.Add(1)
	s.logger.Debug("sending http request", "method", method, "url", rawURL)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, &NetworkError{Method: method, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	s.logger.Debug("response status", "status", resp.StatusCode, "url", rawURL)

	if resp.StatusCode == http.StatusOK {
		if consume == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return resp.StatusCode, nil
		}
		return resp.StatusCode, consume(resp.Body)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	s.logger.Debug("response data", "status", resp.StatusCode, "body", string(body))

	if s.policy.Retryable(resp.StatusCode) {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, &StatusError{
		Method:     method,
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}

// readAll drains r, classifying read failures as network errors.
func readAll(method, rawURL string, r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: rawURL, Err: err}
	}
	return data, nil
}
