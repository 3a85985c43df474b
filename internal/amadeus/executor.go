package amadeus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"farearound/internal/common/errors"
	"farearound/internal/common/logging"
)

const (
	maxAttempts    = 4
	initialBackoff = 1 * time.Second

	searchRequestTimeout = 20 * time.Second
)

// tokenSource provides a valid bearer token. Satisfied by *TokenManager.
type tokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// executor performs one logical upstream call with retry, exponential backoff
// and Retry-After handling. Rate-limit waits and server-error backoffs share
// one attempt budget: a 429 consumes an attempt slot, which implicitly bounds
// the total number of waits.
type executor struct {
	httpClient *http.Client
	tokens     tokenSource
	logger     logging.Logger

	// sleep is swapped out in tests to observe backoff timing.
	sleep func(ctx context.Context, d time.Duration) error
}

func newExecutor(tokens tokenSource, logger logging.Logger) *executor {
	return &executor{
		httpClient: &http.Client{Timeout: searchRequestTimeout},
		tokens:     tokens,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// execute issues GET url?params with a bearer header, retrying per policy, and
// returns the raw JSON body of the first 2xx response.
//
// The token is re-fetched on every attempt: a long backoff window may cross
// the held token's expiry.
func (e *executor) execute(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error) {
	requestURL := rawURL
	if len(params) > 0 {
		requestURL = rawURL + "?" + params.Encode()
	}

	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		token, err := e.tokens.GetToken(ctx)
		if err != nil {
			return nil, err
		}

		body, status, err := e.doRequest(ctx, requestURL, token)

		switch {
		case err != nil:
			// Transport error: retry with backoff while attempts remain.
			lastErr = errors.UpstreamError("upstream request failed", 0, err)
			e.logger.Warn("Upstream request error, retrying",
				logging.Int("attempt", attempt),
				logging.String("error", err.Error()),
			)

		case status == http.StatusTooManyRequests:
			wait := retryAfterOrBackoff(body.retryAfter, backoff)
			lastErr = errors.UpstreamError("rate limited by upstream", status, nil)
			e.logger.Warn("Upstream rate limit, backing off",
				logging.Int("attempt", attempt),
				logging.Duration("wait", wait),
			)
			// No wait after the final attempt; exhaustion surfaces
			// immediately instead of holding the caller for Retry-After.
			if attempt < maxAttempts {
				if err := e.sleep(ctx, wait); err != nil {
					return nil, errors.UpstreamError("request cancelled during rate-limit wait", 0, err)
				}
			}
			backoff *= 2
			continue

		case status >= 500:
			lastErr = errors.UpstreamError(
				fmt.Sprintf("upstream returned status %d", status), status, nil,
			)
			e.logger.Warn("Upstream server error, retrying",
				logging.Int("attempt", attempt),
				logging.Int("status", status),
			)

		case status >= 400:
			// Client errors other than 429 are terminal.
			return nil, errors.UpstreamError(
				fmt.Sprintf("upstream rejected request with status %d", status), status, nil,
			).WithContext("body", truncate(string(body.payload), 512))

		default:
			if json.Valid(body.payload) {
				return body.payload, nil
			}
			// A 2xx wrapping a non-JSON body (proxy error page, truncated
			// stream) must never be surfaced or cached as a result.
			lastErr = errors.UpstreamError("upstream returned malformed JSON", status, nil).
				WithContext("body", truncate(string(body.payload), 512))
			e.logger.Warn("Upstream response is not valid JSON, retrying",
				logging.Int("attempt", attempt),
				logging.Int("status", status),
			)
		}

		if attempt < maxAttempts {
			if err := e.sleep(ctx, backoff); err != nil {
				return nil, errors.UpstreamError("request cancelled during backoff", 0, err)
			}
			backoff *= 2
		}
	}

	if lastErr == nil {
		lastErr = errors.UpstreamError("upstream retries exhausted", 0, nil)
	}
	return nil, lastErr
}

type responseBody struct {
	payload    json.RawMessage
	retryAfter string
}

func (e *executor) doRequest(ctx context.Context, requestURL, token string) (responseBody, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return responseBody{}, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return responseBody{}, 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return responseBody{}, 0, err
	}

	return responseBody{
		payload:    payload,
		retryAfter: resp.Header.Get("Retry-After"),
	}, resp.StatusCode, nil
}

// retryAfterOrBackoff honours a valid non-negative integer Retry-After header,
// otherwise falls back to the current backoff value.
func retryAfterOrBackoff(header string, backoff time.Duration) time.Duration {
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return backoff
}

// sleepContext waits for d, returning early if the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
