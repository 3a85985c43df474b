// Package insight turns a set of observed flight prices into a single
// actionable BOOK/WAIT recommendation with a confidence score.
//
// All monetary comparisons use exact decimal arithmetic so the deal threshold
// and median are free of float rounding artifacts.
package insight

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"farearound/internal/common/errors"
)

// Recommendation values.
const (
	RecommendationBook = "BOOK"
	RecommendationWait = "WAIT"
)

const (
	// dealThreshold marks a best price at least 12% below the peer median.
	dealThresholdStr = "0.88"

	confidenceFloor   = 0.45
	confidenceCeiling = 0.85
)

var dealThreshold = decimal.RequireFromString(dealThresholdStr)

var (
	spreadWide  = decimal.RequireFromString("0.18")
	spreadTight = decimal.RequireFromString("0.06")
)

// PricePoint is one observed offer price.
type PricePoint struct {
	Amount   decimal.Decimal
	Currency string
}

// FlightInsight is the recommendation computed for one query. It is a value,
// recomputed per request and never persisted as a whole.
type FlightInsight struct {
	BestPrice      decimal.Decimal `json:"best_price"`
	Currency       string          `json:"currency"`
	Recommendation string          `json:"recommendation"`
	Reason         string          `json:"reason"`
	Confidence     float64         `json:"confidence"`
}

// RawOffer is the upstream offer shape with the nested price block. Total is
// untyped because upstream serializes it as a string while other producers
// may emit a bare number.
type RawOffer struct {
	Price struct {
		Total    interface{} `json:"total"`
		Currency string      `json:"currency"`
	} `json:"price"`
}

// SimplifiedOffer is the flattened offer shape produced by the API layer.
type SimplifiedOffer struct {
	Total    interface{} `json:"total"`
	Currency string      `json:"currency"`
}

// PointsFromOffers extracts valid price points from raw upstream offers.
// Offers with a non-positive or unparseable total, or a blank currency, are
// dropped silently.
func PointsFromOffers(offers []RawOffer) []PricePoint {
	points := make([]PricePoint, 0, len(offers))
	for _, offer := range offers {
		if p, ok := makePoint(offer.Price.Total, offer.Price.Currency); ok {
			points = append(points, p)
		}
	}
	return points
}

// PointsFromSimplified extracts valid price points from already-flattened
// offers, with the same filtering as PointsFromOffers.
func PointsFromSimplified(offers []SimplifiedOffer) []PricePoint {
	points := make([]PricePoint, 0, len(offers))
	for _, offer := range offers {
		if p, ok := makePoint(offer.Total, offer.Currency); ok {
			points = append(points, p)
		}
	}
	return points
}

// PointsFromSearchResponse extracts price points straight from a raw
// flight-offers response body.
func PointsFromSearchResponse(body json.RawMessage) []PricePoint {
	var resp struct {
		Data []RawOffer `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	return PointsFromOffers(resp.Data)
}

func makePoint(total interface{}, currency string) (PricePoint, bool) {
	amount, ok := parseAmount(total)
	if !ok || !amount.IsPositive() {
		return PricePoint{}, false
	}
	currency = strings.TrimSpace(currency)
	if currency == "" {
		return PricePoint{}, false
	}
	return PricePoint{Amount: amount, Currency: currency}, true
}

// parseAmount converts the mixed total representations (string, number) to a
// decimal, rejecting anything unparseable.
func parseAmount(value interface{}) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.Decimal{}, false
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case decimal.Decimal:
		return v, true
	default:
		return decimal.Decimal{}, false
	}
}

// Compute produces a FlightInsight from the given price points and departure
// date (YYYY-MM-DD). today fixes the reference date; pass time.Now() for live
// queries. Fails with ValidationError when no usable points are supplied.
func Compute(points []PricePoint, departureDate string, today time.Time) (FlightInsight, error) {
	if len(points) == 0 {
		return FlightInsight{}, errors.ValidationError("no valid flight prices found")
	}

	dep, err := time.Parse("2006-01-02", departureDate)
	if err != nil {
		return FlightInsight{}, errors.ValidationError(fmt.Sprintf("invalid departure date %q", departureDate))
	}

	amounts := make([]decimal.Decimal, len(points))
	for i, p := range points {
		amounts[i] = p.Amount
	}

	best := minDecimal(amounts)
	med := median(amounts)

	// First point matching the minimum wins the currency tie-break.
	currency := points[0].Currency
	for _, p := range points {
		if p.Amount.Equal(best) {
			currency = p.Currency
			break
		}
	}

	days := daysToDeparture(dep, today)
	if days < 0 {
		days = 0
	}

	spread := decimal.Zero
	isDeal := false
	if med.IsPositive() {
		spread = med.Sub(best).Div(med)
		isDeal = best.LessThanOrEqual(med.Mul(dealThreshold))
	}

	var recommendation, reason string
	switch {
	case days <= 7:
		recommendation = RecommendationBook
		reason = "Close to departure; prices often rise in the final week. Booking now reduces risk."
	case isDeal:
		recommendation = RecommendationBook
		reason = "This fare is significantly cheaper than other options right now. Lock it in."
	default:
		recommendation = RecommendationWait
		reason = "Still early; prices often improve closer to departure. Set an alert and recheck in a few days."
	}

	confidence := 0.55
	if days <= 7 {
		confidence += 0.20
	} else if days <= 21 {
		confidence += 0.10
	}
	if isDeal {
		confidence += 0.10
	}
	if spread.GreaterThanOrEqual(spreadWide) {
		confidence -= 0.08
	}
	if spread.LessThanOrEqual(spreadTight) {
		confidence += 0.05
	}
	confidence = clamp(confidence, confidenceFloor, confidenceCeiling)

	return FlightInsight{
		BestPrice:      best,
		Currency:       currency,
		Recommendation: recommendation,
		Reason:         reason,
		Confidence:     confidence,
	}, nil
}

// daysToDeparture counts whole calendar days between today and the departure.
func daysToDeparture(dep, today time.Time) int {
	depDate := time.Date(dep.Year(), dep.Month(), dep.Day(), 0, 0, 0, 0, time.UTC)
	nowDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(depDate.Sub(nowDate).Hours() / 24)
}

func minDecimal(values []decimal.Decimal) decimal.Decimal {
	m := values[0]
	for _, v := range values[1:] {
		if v.LessThan(m) {
			m = v
		}
	}
	return m
}

// median returns the middle sorted value, or the average of the two central
// values for even counts.
func median(values []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LessThan(sorted[j])
	})

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
