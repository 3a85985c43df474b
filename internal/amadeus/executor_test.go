package amadeus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farearound/internal/common/errors"
	"farearound/internal/common/logging"
)

// staticTokens is a tokenSource that hands out a fixed token and counts calls.
type staticTokens struct {
	token string
	calls int32
}

func (s *staticTokens) GetToken(ctx context.Context) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.token, nil
}

// newTestExecutor returns an executor whose sleeps are recorded instead of performed.
func newTestExecutor(tokens *staticTokens) (*executor, *[]time.Duration) {
	e := newExecutor(tokens, logging.NewDefaultLogger())

	var sleeps []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return e, &sleeps
}

func TestExecutor_SuccessFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "BLR", r.URL.Query().Get("origin"))
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	tokens := &staticTokens{token: "tok"}
	e, sleeps := newTestExecutor(tokens)

	body, err := e.execute(context.Background(), srv.URL, url.Values{"origin": {"BLR"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(body))
	assert.Empty(t, *sleeps)
	assert.Equal(t, int32(1), tokens.calls)
}

func TestExecutor_RetriesServerErrorsThenFails(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tokens := &staticTokens{token: "tok"}
	e, sleeps := newTestExecutor(tokens)

	_, err := e.execute(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUpstream))
	assert.Equal(t, http.StatusServiceUnavailable, errors.StatusCode(err))

	assert.Equal(t, int32(maxAttempts), hits)
	// Each wait doubles the previous one.
	require.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, *sleeps)
	// The token is fresh-checked on every attempt.
	assert.Equal(t, int32(maxAttempts), tokens.calls)
}

func TestExecutor_RecoversAfterServerError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data":[{"id":"1"}]}`))
	}))
	defer srv.Close()

	e, sleeps := newTestExecutor(&staticTokens{token: "tok"})

	body, err := e.execute(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"id":"1"`)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *sleeps)
}

func TestExecutor_MalformedBodyRetriedThenFails(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`<html>proxy error page</html>`))
	}))
	defer srv.Close()

	e, sleeps := newTestExecutor(&staticTokens{token: "tok"})

	_, err := e.execute(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUpstream))
	assert.Equal(t, http.StatusOK, errors.StatusCode(err))
	assert.Equal(t, int32(maxAttempts), hits, "a 2xx with a non-JSON body is retried")
	assert.Len(t, *sleeps, maxAttempts-1)
}

func TestExecutor_RecoversAfterMalformedBody(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Write([]byte(`{"data": [`))
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	e, sleeps := newTestExecutor(&staticTokens{token: "tok"})

	body, err := e.execute(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(body))
	assert.Equal(t, []time.Duration{1 * time.Second}, *sleeps)
}

func TestExecutor_RateLimitHonoursRetryAfter(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	e, sleeps := newTestExecutor(&staticTokens{token: "tok"})

	_, err := e.execute(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Equal(t, []time.Duration{7 * time.Second}, *sleeps)
}

func TestExecutor_RateLimitFallsBackToBackoff(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1:
			w.Header().Set("Retry-After", "soon") // not a valid integer
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Write([]byte(`{"data":[]}`))
		}
	}))
	defer srv.Close()

	e, sleeps := newTestExecutor(&staticTokens{token: "tok"})

	_, err := e.execute(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	// Invalid header falls back to the backoff, which doubles after each wait.
	require.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *sleeps)
}

func TestExecutor_RateLimitConsumesAttemptBudget(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e, _ := newTestExecutor(&staticTokens{token: "tok"})

	_, err := e.execute(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUpstream))
	assert.Equal(t, http.StatusTooManyRequests, errors.StatusCode(err))
	assert.Equal(t, int32(maxAttempts), hits)
}

func TestExecutor_ClientErrorIsTerminal(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"detail":"invalid date"}]}`))
	}))
	defer srv.Close()

	e, sleeps := newTestExecutor(&staticTokens{token: "tok"})

	_, err := e.execute(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUpstream))
	assert.Equal(t, http.StatusBadRequest, errors.StatusCode(err))
	assert.Equal(t, int32(1), hits, "4xx must not be retried")
	assert.Empty(t, *sleeps)
}

func TestExecutor_TransportErrorRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	e, sleeps := newTestExecutor(&staticTokens{token: "tok"})

	_, err := e.execute(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUpstream))
	assert.Len(t, *sleeps, maxAttempts-1)
}
