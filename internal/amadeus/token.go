// Package amadeus implements the resilient Amadeus API client: bearer-token
// management, a retrying request executor, and the flight/hotel search
// surface with short-TTL response caching.
package amadeus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"farearound/internal/circuitbreaker"
	"farearound/internal/common/errors"
	"farearound/internal/common/logging"
)

const (
	tokenPath = "/v1/security/oauth2/token"

	// tokenSafetyMargin is subtracted from the token expiry so a token handed
	// out is never within 10s of going stale mid-request.
	tokenSafetyMargin = 10 * time.Second

	// defaultExpiresIn is assumed when the token response omits expires_in.
	defaultExpiresIn = 3600

	tokenRequestTimeout = 10 * time.Second
)

// tokenResponse maps the OAuth2 client-credentials token response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenManager owns the current bearer token and refreshes it on demand.
// The whole check-then-refresh sequence runs under one mutex, so concurrent
// callers that all see an expired token block and reuse a single refresh
// round-trip instead of issuing duplicate auth requests.
type TokenManager struct {
	mu sync.Mutex

	clientID     string
	clientSecret string
	tokenURL     string

	token     string
	expiresAt time.Time

	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     logging.Logger

	now func() time.Time
}

// NewTokenManager creates a token manager for the given Amadeus credentials.
func NewTokenManager(clientID, clientSecret, baseURL string, logger logging.Logger) *TokenManager {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &TokenManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     strings.TrimRight(baseURL, "/") + tokenPath,
		httpClient:   &http.Client{Timeout: tokenRequestTimeout},
		breaker:      circuitbreaker.New("amadeus-token", circuitbreaker.TokenEndpointConfig, logger),
		logger:       logger,
		now:          time.Now,
	}
}

// GetToken returns a bearer token with at least the safety margin of validity
// remaining, refreshing it first when necessary. Credential or transport
// failures surface as AuthError; no stale token is served in that case.
func (m *TokenManager) GetToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Before(m.expiresAt.Add(-tokenSafetyMargin)) {
		return m.token, nil
	}

	token, expiresIn, err := m.requestToken(ctx)
	if err != nil {
		return "", err
	}

	m.token = token
	m.expiresAt = m.now().Add(time.Duration(expiresIn) * time.Second)

	m.logger.Debug("Refreshed Amadeus access token",
		logging.Int("expires_in", expiresIn),
	)

	return m.token, nil
}

// requestToken performs the client-credentials exchange. Callers must hold the mutex.
func (m *TokenManager) requestToken(ctx context.Context) (string, int, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", m.clientID)
	data.Set("client_secret", m.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, errors.AuthError("failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp *http.Response
	err = m.breaker.Execute(func() error {
		var httpErr error
		resp, httpErr = m.httpClient.Do(req)
		return httpErr
	})
	if err != nil {
		return "", 0, errors.AuthError("token request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if decErr := json.NewDecoder(resp.Body).Decode(&errResp); decErr == nil && errResp.Error != "" {
			return "", 0, errors.AuthError(
				fmt.Sprintf("token request rejected: %s - %s", errResp.Error, errResp.Description), nil,
			).WithContext("status_code", resp.StatusCode)
		}
		return "", 0, errors.AuthError(
			fmt.Sprintf("token request failed with status %d", resp.StatusCode), nil,
		).WithContext("status_code", resp.StatusCode)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", 0, errors.AuthError("failed to decode token response", err)
	}
	if tokenResp.AccessToken == "" {
		return "", 0, errors.AuthError("token response missing access_token", nil)
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	return tokenResp.AccessToken, expiresIn, nil
}
