package secure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/buemura/sectools/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
	// onSleep runs inside Sleep, e.g. to cancel a context.
	onSleep func()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ctx.Err()
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleeps)
}

type recordingObserver struct {
	backoffs []int
	retries  int
}

func (o *recordingObserver) OnBackoff(status int, _ string, _ time.Duration) {
	o.backoffs = append(o.backoffs, status)
}

func (o *recordingObserver) OnRetry() { o.retries++ }

func newTestSession(t *testing.T, srv *httptest.Server, mutate ...func(*Config)) (*Session, *fakeClock) {
	t.Helper()
	endpoint, err := types.ParseAuthority(srv.URL)
	require.NoError(t, err)

	clock := &fakeClock{}
	cfg := Config{
		Endpoint: endpoint,
		Token:    "test-token",
		Policy:   DefaultRetryPolicy(),
		Clock:    clock,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewSession(cfg)
	require.NoError(t, err)
	return s, clock
}

// pagedHandler serves pages of integer ids. Page i is reached with cursor "p<i>".
func pagedHandler(pages [][]int, count *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		idx := 0
		if c := r.URL.Query().Get("cursor"); c != "" {
			idx, _ = strconv.Atoi(strings.TrimPrefix(c, "p"))
		}
		items := make([]string, len(pages[idx]))
		for i, id := range pages[idx] {
			items[i] = fmt.Sprintf(`{"id":%d}`, id)
		}
		next := ""
		if idx+1 < len(pages) {
			next = fmt.Sprintf("p%d", idx+1)
		}
		fmt.Fprintf(w, `{"data":[%s],"page":{"next":%q}}`, strings.Join(items, ","), next)
	}
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(Config{Token: "x"})
	assert.Error(t, err)

	_, err = NewSession(Config{Endpoint: types.Endpoint{Host: "example.com", Scheme: "https"}})
	assert.Error(t, err)

	s, err := NewSession(Config{Endpoint: types.Endpoint{Host: "example.com", Scheme: "https"}, Token: "t"})
	require.NoError(t, err)
	assert.Equal(t, "t", s.Token())
	assert.True(t, s.policy.Retryable(http.StatusTooManyRequests))
}

func TestSession_Resolve(t *testing.T) {
	s, err := NewSession(Config{Endpoint: types.Endpoint{Host: "example.com", Scheme: "https"}, Token: "t"})
	require.NoError(t, err)

	u, err := s.resolve("/api/v2/things", map[string][]string{"limit": {"100"}})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/api/v2/things?limit=100", u)

	u, err = s.resolve("https://other.example.com/report.gz", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/report.gz", u)
}

func TestSession_SendsBearerToken(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	s, _ := newTestSession(t, srv)
	rec, err := s.Get(context.Background(), "api/users/me", nil)

	require.NoError(t, err)
	assert.True(t, rec.Get("ok").Bool())
	assert.Equal(t, "Bearer test-token", auth.Load())
	assert.Equal(t, int64(1), s.Stats().Requests())
}

func TestSession_RetriesThrottledRequest(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if count.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":1},{"id":2}],"page":{"next":""}}`)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	s, clock := newTestSession(t, srv, func(c *Config) {
		c.Observer = obs
		c.Policy.Backoff = 5 * time.Second
	})

	records, err := s.FetchAll(context.Background(), "api/things", nil)

	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int64(1), s.Stats().Retries(http.StatusTooManyRequests))
	assert.Equal(t, int64(0), s.Stats().Retries(http.StatusGatewayTimeout))
	assert.Equal(t, []time.Duration{5 * time.Second}, clock.sleeps)
	assert.Equal(t, []int{http.StatusTooManyRequests}, obs.backoffs)
	assert.Equal(t, 1, obs.retries)
	assert.Equal(t, int32(2), count.Load())
}

func TestSession_RetriesGatewayTimeout(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if count.Add(1) <= 3 {
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		fmt.Fprint(w, `{"data":[],"page":{}}`)
	}))
	defer srv.Close()

	s, clock := newTestSession(t, srv)
	_, err := s.FetchAll(context.Background(), "api/things", nil)

	require.NoError(t, err)
	assert.Equal(t, int64(3), s.Stats().Retries(http.StatusGatewayTimeout))
	assert.Equal(t, 3, clock.count())
}

func TestSession_FatalStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"boom"}`)
	}))
	defer srv.Close()

	s, clock := newTestSession(t, srv)
	_, err := s.FetchAll(context.Background(), "api/things", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedHTTPResponse)
	se, ok := IsStatus(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Contains(t, se.Body, "boom")
	assert.Contains(t, se.URL, "/api/things")
	assert.Zero(t, clock.count())
	assert.False(t, IsNetwork(err))
}

func TestSession_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	s, _ := newTestSession(t, srv)
	srv.Close()

	_, err := s.Get(context.Background(), "api/things", nil)

	require.Error(t, err)
	assert.True(t, IsNetwork(err))
	assert.NotErrorIs(t, err, ErrUnexpectedHTTPResponse)
}

func TestSession_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>maintenance</html>`)
	}))
	defer srv.Close()

	s, _ := newTestSession(t, srv)

	_, err := s.FetchAll(context.Background(), "api/things", nil)
	assert.True(t, IsDecode(err))

	_, err = s.Get(context.Background(), "api/things", nil)
	assert.True(t, IsDecode(err))
}

func TestSession_MissingDataIsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"page":{"next":""}}`)
	}))
	defer srv.Close()

	s, _ := newTestSession(t, srv)
	_, err := s.FetchAll(context.Background(), "api/things", nil)

	assert.True(t, IsDecode(err))
	assert.ErrorIs(t, err, types.ErrMissingField)
}

func TestSession_MaxRetriesExhausted(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s, clock := newTestSession(t, srv, func(c *Config) { c.Policy.MaxRetries = 2 })
	_, err := s.FetchAll(context.Background(), "api/things", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	se, ok := IsStatus(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Equal(t, int32(3), count.Load())
	assert.Equal(t, 2, clock.count())
}

func TestSession_CancelDuringBackoff(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, clock := newTestSession(t, srv)
	clock.onSleep = cancel

	_, err := s.FetchAll(ctx, "api/things", nil)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(1), count.Load())
}

func TestSession_CanceledBeforeRequest(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, _ := newTestSession(t, srv)
	_, err := s.FetchAll(ctx, "api/things", nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, count.Load())
}

func TestRealClock_SleepHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := RealClock().Sleep(ctx, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
