package amadeus

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"farearound/internal/cache"
	"farearound/internal/common/logging"
)

const (
	flightOffersPath = "/v2/shopping/flight-offers"
	hotelOffersPath  = "/v1/shopping/hotel-offers"
)

// FlightQuery holds the parameters for a flight-offers search.
type FlightQuery struct {
	Origin        string
	Destination   string
	DepartureDate string // YYYY-MM-DD
	ReturnDate    string // optional
	Adults        int
	NonStop       bool
	CurrencyCode  string // optional forced reporting currency
	MaxResults    int
}

// HotelQuery holds the parameters for a hotel-offers search.
type HotelQuery struct {
	CityCode     string
	CheckInDate  string // YYYY-MM-DD
	CheckOutDate string // optional
	Adults       int
	CurrencyCode string
}

// Client is the caller-facing Amadeus search client. It deduplicates identical
// queries through the response cache and delegates the actual calls to the
// retrying executor. Failures are never cached.
type Client struct {
	baseURL  string
	tokens   *TokenManager
	executor *executor
	cache    cache.Cache
	logger   logging.Logger
}

// NewClient creates an Amadeus search client.
func NewClient(clientID, clientSecret, baseURL string, responseCache cache.Cache, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	tokens := NewTokenManager(clientID, clientSecret, baseURL, logger)

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokens:   tokens,
		executor: newExecutor(tokens, logger),
		cache:    responseCache,
		logger:   logger,
	}
}

// SearchFlights queries the flight-offers endpoint, serving identical queries
// from the response cache within its TTL.
func (c *Client) SearchFlights(ctx context.Context, q FlightQuery) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("originLocationCode", q.Origin)
	params.Set("destinationLocationCode", q.Destination)
	params.Set("departureDate", q.DepartureDate)
	if q.ReturnDate != "" {
		params.Set("returnDate", q.ReturnDate)
	}
	adults := q.Adults
	if adults < 1 {
		adults = 1
	}
	params.Set("adults", strconv.Itoa(adults))
	params.Set("nonStop", strconv.FormatBool(q.NonStop))
	if q.CurrencyCode != "" {
		params.Set("currencyCode", q.CurrencyCode)
	}
	if q.MaxResults > 0 {
		params.Set("max", strconv.Itoa(q.MaxResults))
	}

	return c.cachedCall(ctx, flightOffersPath, params)
}

// SearchHotels queries the hotel-offers endpoint with the same caching policy
// as SearchFlights.
func (c *Client) SearchHotels(ctx context.Context, q HotelQuery) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("cityCode", q.CityCode)
	params.Set("checkInDate", q.CheckInDate)
	if q.CheckOutDate != "" {
		params.Set("checkOutDate", q.CheckOutDate)
	}
	adults := q.Adults
	if adults < 1 {
		adults = 1
	}
	params.Set("adults", strconv.Itoa(adults))
	if q.CurrencyCode != "" {
		params.Set("currency", q.CurrencyCode)
	}

	return c.cachedCall(ctx, hotelOffersPath, params)
}

func (c *Client) cachedCall(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	key := cacheKey(endpoint, params)

	if cached, ok := c.cache.Get(ctx, key); ok {
		c.logger.Debug("Upstream cache hit", logging.String("endpoint", endpoint))
		return cached, nil
	}

	result, err := c.executor.execute(ctx, c.baseURL+endpoint, params)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, result); err != nil {
		// A cache write failure only costs deduplication.
		c.logger.Warn("Failed to cache upstream response",
			logging.String("endpoint", endpoint),
			logging.String("error", err.Error()),
		)
	}

	return result, nil
}

// cacheKey derives a deterministic key from the endpoint and parameters.
// Parameter values are stringified and keys sorted (json.Marshal orders map
// keys), so equivalent queries collide regardless of field ordering or the
// caller's numeric/boolean formatting.
func cacheKey(endpoint string, params url.Values) string {
	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"e": endpoint,
		"p": flat,
	})
	return string(payload)
}
