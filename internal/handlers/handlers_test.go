package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farearound/internal/alerts"
	"farearound/internal/amadeus"
	"farearound/internal/cache"
	"farearound/internal/common/logging"
	"farearound/internal/config"
	"farearound/internal/email"
	"farearound/internal/storage"
)

const flightOffersBody = `{"data":[
	{
		"id": "1",
		"price": {"total": "4500.00", "currency": "INR"},
		"itineraries": [{
			"duration": "PT2H45M",
			"segments": [{
				"departure": {"iataCode": "BLR", "at": "2025-07-01T06:00:00"},
				"arrival": {"iataCode": "DEL", "at": "2025-07-01T08:45:00"},
				"carrierCode": "AI",
				"number": "505",
				"duration": "PT2H45M"
			}]
		}]
	},
	{
		"id": "2",
		"price": {"total": "5200.00", "currency": "INR"},
		"itineraries": []
	}
]}`

// newUpstream fakes the Amadeus token and search endpoints.
func newUpstream(t *testing.T, searchStatus int, searchBody string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "oauth2/token") {
			w.Write([]byte(`{"access_token":"tok","expires_in":1799}`))
			return
		}
		w.WriteHeader(searchStatus)
		w.Write([]byte(searchBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestHandlers(t *testing.T, upstreamURL string) (*Handlers, storage.Storage) {
	t.Helper()

	cfg := &config.Config{
		AffiliateID:    "aff-123",
		AlertsCurrency: "INR",
	}
	logger := logging.NewDefaultLogger()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := amadeus.NewClient("id", "secret", upstreamURL,
		cache.NewLocalCache(cache.DefaultOptions()), logger)
	alertService := alerts.NewService(client, store, store, email.NewService(cfg, logger), "INR", logger)

	return New(client, alertService, store, cfg, logger), store
}

func doRequest(h *Handlers, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, `{"data":[]}`)
	h, _ := newTestHandlers(t, srv.URL)

	rec := doRequest(h, "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSearchFlights_SimplifiesOffers(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, flightOffersBody)
	h, _ := newTestHandlers(t, srv.URL)

	rec := doRequest(h, "GET", "/api/search/flights?origin=blr&destination=del&departureDate=2025-07-01", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Query struct {
			Origin  string `json:"origin"`
			NonStop bool   `json:"nonStop"`
		} `json:"query"`
		Count  int `json:"count"`
		Offers []struct {
			ID       string `json:"id"`
			Total    string `json:"total"`
			Duration string `json:"duration"`
			Segments []struct {
				From    string `json:"from"`
				Carrier string `json:"carrier"`
			} `json:"segments"`
		} `json:"offers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "BLR", resp.Query.Origin)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Offers, 2)
	assert.Equal(t, "4500.00", resp.Offers[0].Total)
	assert.Equal(t, "PT2H45M", resp.Offers[0].Duration)
	require.Len(t, resp.Offers[0].Segments, 1)
	assert.Equal(t, "BLR", resp.Offers[0].Segments[0].From)
	assert.Equal(t, "AI", resp.Offers[0].Segments[0].Carrier)
	assert.Empty(t, resp.Offers[1].Segments)
}

func TestSearchFlights_ValidationErrors(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, `{"data":[]}`)
	h, _ := newTestHandlers(t, srv.URL)

	tests := []struct {
		name   string
		target string
	}{
		{"missing origin", "/api/search/flights?destination=DEL&departureDate=2025-07-01"},
		{"bad IATA code", "/api/search/flights?origin=BANGALORE&destination=DEL&departureDate=2025-07-01"},
		{"bad date", "/api/search/flights?origin=BLR&destination=DEL&departureDate=July"},
		{"adults out of range", "/api/search/flights?origin=BLR&destination=DEL&departureDate=2025-07-01&adults=12"},
		{"non-numeric max", "/api/search/flights?origin=BLR&destination=DEL&departureDate=2025-07-01&max=lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(h, "GET", tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSearchFlights_UpstreamFailureIs502(t *testing.T) {
	srv := newUpstream(t, http.StatusBadRequest, `{"errors":[]}`)
	h, _ := newTestHandlers(t, srv.URL)

	rec := doRequest(h, "GET", "/api/search/flights?origin=BLR&destination=DEL&departureDate=2025-07-01", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetInsight(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, flightOffersBody)
	h, _ := newTestHandlers(t, srv.URL)

	departure := time.Now().AddDate(0, 0, 3).Format("2006-01-02")
	rec := doRequest(h, "GET", "/api/insight?origin=BLR&destination=DEL&departureDate="+departure, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		BestPrice      string  `json:"best_price"`
		Currency       string  `json:"currency"`
		Recommendation string  `json:"recommendation"`
		Confidence     float64 `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "4500.00", resp.BestPrice)
	assert.Equal(t, "INR", resp.Currency)
	assert.Equal(t, "BOOK", resp.Recommendation, "3 days out always books")
	assert.Greater(t, resp.Confidence, 0.0)
}

func TestGetInsight_RecordsSnapshot(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, flightOffersBody)
	h, store := newTestHandlers(t, srv.URL)

	departure := time.Now().AddDate(0, 0, 3).Format("2006-01-02")
	rec := doRequest(h, "GET", "/api/insight?origin=BLR&destination=DEL&departureDate="+departure, "")
	require.Equal(t, http.StatusOK, rec.Code)

	count, err := store.CountSnapshots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	snaps, err := store.RecentSnapshots(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "BLR-DEL", snaps[0].Route)
	assert.True(t, snaps[0].BestPrice.Equal(decimal.RequireFromString("4500.00")))
}

func TestGetInsight_EmailParamSavesLead(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, flightOffersBody)
	h, store := newTestHandlers(t, srv.URL)

	departure := time.Now().AddDate(0, 0, 3).Format("2006-01-02")
	rec := doRequest(h, "GET",
		"/api/insight?origin=BLR&destination=DEL&departureDate="+departure+"&email=traveler%40example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)

	leads, err := store.ListLeads(context.Background())
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "traveler@example.com", leads[0].Email)
	assert.Equal(t, "BLR", leads[0].Origin)
	assert.Equal(t, "DEL", leads[0].Destination)
}

func TestGetInsight_BadEmailParamRejected(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, flightOffersBody)
	h, store := newTestHandlers(t, srv.URL)

	departure := time.Now().AddDate(0, 0, 3).Format("2006-01-02")
	rec := doRequest(h, "GET",
		"/api/insight?origin=BLR&destination=DEL&departureDate="+departure+"&email=not-an-address", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	leads, err := store.ListLeads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestGetInsight_NoOffers(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, `{"data":[]}`)
	h, _ := newTestHandlers(t, srv.URL)

	rec := doRequest(h, "GET", "/api/insight?origin=BLR&destination=DEL&departureDate=2025-07-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateLead(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, `{"data":[]}`)
	h, store := newTestHandlers(t, srv.URL)

	body := `{"email":"traveler@example.com","origin":"blr","destination":"del","departure_date":"2025-07-01"}`
	rec := doRequest(h, "POST", "/api/alerts/leads", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	leads, err := store.ListLeads(context.Background())
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "BLR", leads[0].Origin)
	assert.Nil(t, leads[0].LastSeenPrice)
}

func TestCreateLead_Invalid(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, `{"data":[]}`)
	h, _ := newTestHandlers(t, srv.URL)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `origin=BLR`},
		{"bad email", `{"email":"nope","origin":"BLR","destination":"DEL","departure_date":"2025-07-01"}`},
		{"missing date", `{"email":"traveler@example.com","origin":"BLR","destination":"DEL"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(h, "POST", "/api/alerts/leads", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRunAlerts(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, flightOffersBody)
	h, store := newTestHandlers(t, srv.URL)

	require.NoError(t, store.UpsertLead(context.Background(), storage.Lead{
		Email:         "traveler@example.com",
		Origin:        "BLR",
		Destination:   "DEL",
		DepartureDate: "2025-07-01",
	}))

	rec := doRequest(h, "POST", "/api/alerts/run", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary alerts.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.LeadsChecked)
	assert.Equal(t, 1, summary.Initialized)
}

func TestAffiliateInfo(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, `{"data":[]}`)
	h, _ := newTestHandlers(t, srv.URL)

	rec := doRequest(h, "GET", "/api/affiliate/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"affiliate_id":"aff-123","domain":null}`, rec.Body.String())
}
