package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"farearound/internal/amadeus"
	"farearound/internal/common/errors"
	"farearound/internal/common/logging"
	"farearound/internal/insight"
	"farearound/internal/storage"
)

const forcedSearchCurrency = "INR"

type flightSearchParams struct {
	Origin        string `validate:"required,len=3,alpha"`
	Destination   string `validate:"required,len=3,alpha"`
	DepartureDate string `validate:"required,datetime=2006-01-02"`
	Adults        int    `validate:"min=1,max=9"`
	NonStop       bool
	Max           int `validate:"min=1,max=50"`
}

type hotelSearchParams struct {
	CityCode string `validate:"required,len=3,alpha"`
	CheckIn  string `validate:"required,datetime=2006-01-02"`
	CheckOut string `validate:"omitempty,datetime=2006-01-02"`
}

// simplifiedSegment is one flight leg in the flattened offer shape.
type simplifiedSegment struct {
	From            string `json:"from"`
	To              string `json:"to"`
	DepartAt        string `json:"departAt"`
	ArriveAt        string `json:"arriveAt"`
	Carrier         string `json:"carrier"`
	FlightNumber    string `json:"flightNumber"`
	SegmentDuration string `json:"segmentDuration"`
}

type simplifiedOffer struct {
	ID       string              `json:"id"`
	Total    string              `json:"total"`
	Currency string              `json:"currency"`
	Duration string              `json:"duration"`
	Segments []simplifiedSegment `json:"segments"`
}

// rawFlightResponse covers the slice of the upstream offer payload the API
// surfaces to clients.
type rawFlightResponse struct {
	Data []struct {
		ID    string `json:"id"`
		Price struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"price"`
		Itineraries []struct {
			Duration string `json:"duration"`
			Segments []struct {
				Departure struct {
					IataCode string `json:"iataCode"`
					At       string `json:"at"`
				} `json:"departure"`
				Arrival struct {
					IataCode string `json:"iataCode"`
					At       string `json:"at"`
				} `json:"arrival"`
				CarrierCode string `json:"carrierCode"`
				Number      string `json:"number"`
				Duration    string `json:"duration"`
			} `json:"segments"`
		} `json:"itineraries"`
	} `json:"data"`
}

// SearchFlights handles GET /api/search/flights.
func (h *Handlers) SearchFlights(w http.ResponseWriter, r *http.Request) {
	params, err := h.parseFlightParams(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	raw, err := h.client.SearchFlights(r.Context(), amadeus.FlightQuery{
		Origin:        params.Origin,
		Destination:   params.Destination,
		DepartureDate: params.DepartureDate,
		Adults:        params.Adults,
		NonStop:       params.NonStop,
		CurrencyCode:  forcedSearchCurrency,
		MaxResults:    params.Max,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	offers := simplifyOffers(raw)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"query": map[string]interface{}{
			"origin":        params.Origin,
			"destination":   params.Destination,
			"departureDate": params.DepartureDate,
			"adults":        params.Adults,
			"nonStop":       params.NonStop,
		},
		"count":  len(offers),
		"offers": offers,
	})
}

// SearchHotels handles GET /api/search/hotels, returning the raw upstream
// payload.
func (h *Handlers) SearchHotels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := hotelSearchParams{
		CityCode: strings.ToUpper(strings.TrimSpace(q.Get("cityCode"))),
		CheckIn:  strings.TrimSpace(q.Get("checkIn")),
		CheckOut: strings.TrimSpace(q.Get("checkOut")),
	}
	if err := h.validate.Struct(params); err != nil {
		h.writeError(w, errors.ValidationError(fmt.Sprintf("invalid hotel search parameters: %v", err)))
		return
	}

	raw, err := h.client.SearchHotels(r.Context(), amadeus.HotelQuery{
		CityCode:     params.CityCode,
		CheckInDate:  params.CheckIn,
		CheckOutDate: params.CheckOut,
		Adults:       1,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

// GetInsight handles GET /api/insight: it searches current fares and returns
// the BOOK/WAIT recommendation for the route.
func (h *Handlers) GetInsight(w http.ResponseWriter, r *http.Request) {
	params, err := h.parseFlightParams(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	raw, err := h.client.SearchFlights(r.Context(), amadeus.FlightQuery{
		Origin:        params.Origin,
		Destination:   params.Destination,
		DepartureDate: params.DepartureDate,
		Adults:        params.Adults,
		NonStop:       params.NonStop,
		CurrencyCode:  forcedSearchCurrency,
		MaxResults:    params.Max,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	points := insight.PointsFromSearchResponse(raw)
	result, err := insight.Compute(points, params.DepartureDate, time.Now())
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Persistence is best-effort: the insight is still useful when the
	// database is down.
	if h.storage != nil {
		snapErr := h.storage.InsertSnapshot(r.Context(), storage.PriceSnapshot{
			Origin:        params.Origin,
			Destination:   params.Destination,
			DepartureDate: params.DepartureDate,
			BestPrice:     result.BestPrice,
			Currency:      result.Currency,
		})
		if snapErr != nil {
			h.logger.Warn("Failed to record price snapshot",
				logging.String("route", params.Origin+"-"+params.Destination),
				logging.String("error", snapErr.Error()),
			)
		}

		if email := strings.TrimSpace(r.URL.Query().Get("email")); email != "" {
			if err := h.validate.Var(email, "email"); err != nil {
				h.writeError(w, errors.ValidationError("invalid email address"))
				return
			}
			leadErr := h.storage.UpsertLead(r.Context(), storage.Lead{
				Email:         email,
				Origin:        params.Origin,
				Destination:   params.Destination,
				DepartureDate: params.DepartureDate,
			})
			if leadErr != nil {
				h.logger.Warn("Failed to save alert lead from insight request",
					logging.String("route", params.Origin+"-"+params.Destination),
					logging.String("error", leadErr.Error()),
				)
			}
		}
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) parseFlightParams(r *http.Request) (flightSearchParams, error) {
	q := r.URL.Query()

	params := flightSearchParams{
		Origin:        strings.ToUpper(strings.TrimSpace(q.Get("origin"))),
		Destination:   strings.ToUpper(strings.TrimSpace(q.Get("destination"))),
		DepartureDate: strings.TrimSpace(q.Get("departureDate")),
		Adults:        1,
		Max:           20,
	}

	if v := q.Get("adults"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, errors.ValidationError("adults must be an integer")
		}
		params.Adults = n
	}
	if v := q.Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, errors.ValidationError("max must be an integer")
		}
		params.Max = n
	}
	if v := q.Get("nonStop"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return params, errors.ValidationError("nonStop must be a boolean")
		}
		params.NonStop = b
	}

	if err := h.validate.Struct(params); err != nil {
		return params, errors.ValidationError(fmt.Sprintf("invalid flight search parameters: %v", err))
	}
	return params, nil
}

// simplifyOffers flattens the upstream offer shape for API clients. Offers
// that fail to decode are dropped rather than failing the request.
func simplifyOffers(raw json.RawMessage) []simplifiedOffer {
	var resp rawFlightResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return []simplifiedOffer{}
	}

	offers := make([]simplifiedOffer, 0, len(resp.Data))
	for _, o := range resp.Data {
		offer := simplifiedOffer{
			ID:       o.ID,
			Total:    o.Price.Total,
			Currency: o.Price.Currency,
			Segments: []simplifiedSegment{},
		}
		if len(o.Itineraries) > 0 {
			first := o.Itineraries[0]
			offer.Duration = first.Duration
			for _, s := range first.Segments {
				offer.Segments = append(offer.Segments, simplifiedSegment{
					From:            s.Departure.IataCode,
					To:              s.Arrival.IataCode,
					DepartAt:        s.Departure.At,
					ArriveAt:        s.Arrival.At,
					Carrier:         s.CarrierCode,
					FlightNumber:    s.Number,
					SegmentDuration: s.Duration,
				})
			}
		}
		offers = append(offers, offer)
	}
	return offers
}
