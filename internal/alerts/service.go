// Package alerts implements the scheduled price-drop batch: it re-checks
// every saved lead against current fares and notifies travelers whose route
// got cheaper.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"farearound/internal/amadeus"
	"farearound/internal/common/logging"
	"farearound/internal/email"
	"farearound/internal/insight"
	"farearound/internal/storage"
)

const (
	searchMaxResults = 20
	defaultCurrency  = "INR"
)

// FlightSearcher is the slice of the upstream client the pipeline needs.
type FlightSearcher interface {
	SearchFlights(ctx context.Context, q amadeus.FlightQuery) (json.RawMessage, error)
}

// Summary reports what one batch run did. It is the externally observable
// contract consumed by the scheduler and the admin endpoint.
type Summary struct {
	LeadsChecked int `json:"leads_checked"`
	Initialized  int `json:"initialized"`
	EmailsSent   int `json:"emails_sent"`
	Updated      int `json:"updated"`
	NoChange     int `json:"no_change"`
	NoOffers     int `json:"no_offers"`
	Errors       int `json:"errors"`
}

// Service runs price-drop checks over all saved leads.
//
// Non-negotiables carried by this pipeline:
//   - per-lead isolation: one bad lead never stops the run
//   - forced reporting currency: comparisons stay apples-to-apples
//   - email gating: the stored baseline moves only after the send succeeds
type Service struct {
	searcher FlightSearcher
	leads    storage.LeadStore
	snaps    storage.SnapshotStore
	sender   email.Sender
	currency string
	logger   logging.Logger

	now func() time.Time
}

// NewService creates the alert pipeline. currency is the forced reporting
// currency for all comparisons; empty falls back to INR.
func NewService(searcher FlightSearcher, leads storage.LeadStore, snaps storage.SnapshotStore, sender email.Sender, currency string, logger logging.Logger) *Service {
	if currency == "" {
		currency = defaultCurrency
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Service{
		searcher: searcher,
		leads:    leads,
		snaps:    snaps,
		sender:   sender,
		currency: currency,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckPriceDrops processes every saved lead sequentially and returns the
// batch summary. Only a failure to list the leads aborts the run; everything
// else is contained at the lead boundary.
func (s *Service) CheckPriceDrops(ctx context.Context) (Summary, error) {
	var summary Summary

	leads, err := s.leads.ListLeads(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list alert leads: %w", err)
	}

	s.logger.Info("Starting price drop check", logging.Int("leads", len(leads)))

	for _, lead := range leads {
		summary.LeadsChecked++
		s.checkLead(ctx, lead, &summary)
	}

	s.logger.Info("Price drop check finished",
		logging.Int("leads_checked", summary.LeadsChecked),
		logging.Int("emails_sent", summary.EmailsSent),
		logging.Int("errors", summary.Errors),
	)

	return summary, nil
}

// checkLead processes one lead. Panics and errors are absorbed here so the
// batch always continues with the next lead.
func (s *Service) checkLead(ctx context.Context, lead storage.Lead, summary *Summary) {
	defer func() {
		if r := recover(); r != nil {
			summary.Errors++
			s.logger.Error("Panic while checking lead", fmt.Errorf("%v", r),
				logging.Int("lead_id", int(lead.ID)),
			)
		}
	}()

	outcome, err := s.processLead(ctx, lead)
	if err != nil {
		summary.Errors++
		s.logger.Error("Alert check failed for lead", err,
			logging.Int("lead_id", int(lead.ID)),
			logging.String("route", lead.Origin+"-"+lead.Destination),
		)
		return
	}

	switch outcome {
	case outcomeNoOffers:
		summary.NoOffers++
	case outcomeInitialized:
		summary.Initialized++
		summary.Updated++
	case outcomeEmailSent:
		summary.EmailsSent++
		summary.Updated++
	case outcomeNoChange:
		summary.NoChange++
	}
}

type leadOutcome int

const (
	outcomeNoOffers leadOutcome = iota
	outcomeInitialized
	outcomeEmailSent
	outcomeNoChange
)

func (s *Service) processLead(ctx context.Context, lead storage.Lead) (leadOutcome, error) {
	raw, err := s.searcher.SearchFlights(ctx, amadeus.FlightQuery{
		Origin:        lead.Origin,
		Destination:   lead.Destination,
		DepartureDate: lead.DepartureDate,
		Adults:        1,
		CurrencyCode:  s.currency,
		MaxResults:    searchMaxResults,
	})
	if err != nil {
		return 0, err
	}

	points := insight.PointsFromSearchResponse(raw)
	if len(points) == 0 {
		return outcomeNoOffers, nil
	}

	result, err := insight.Compute(points, lead.DepartureDate, s.now())
	if err != nil {
		// No usable points is an expected outcome, not a lead failure.
		return outcomeNoOffers, nil
	}

	newPrice := result.BestPrice
	s.recordSnapshot(ctx, lead, newPrice)

	// First observation establishes the baseline; it is not a drop.
	if lead.LastSeenPrice == nil {
		if err := s.leads.UpdateLeadLastSeen(ctx, lead.ID, newPrice, s.currency); err != nil {
			return 0, err
		}
		return outcomeInitialized, nil
	}

	if newPrice.LessThan(*lead.LastSeenPrice) {
		// Email first. The baseline moves only after the send succeeds, so a
		// transport failure never swallows a future drop notification.
		if err := s.sender.SendPriceDrop(
			lead.Email, lead.Origin, lead.Destination, lead.DepartureDate,
			*lead.LastSeenPrice, newPrice, s.currency,
		); err != nil {
			return 0, err
		}
		if err := s.leads.UpdateLeadLastSeen(ctx, lead.ID, newPrice, s.currency); err != nil {
			return 0, err
		}
		return outcomeEmailSent, nil
	}

	return outcomeNoChange, nil
}

// recordSnapshot appends the observed best price. A snapshot failure only
// costs history, so it is logged and otherwise ignored.
func (s *Service) recordSnapshot(ctx context.Context, lead storage.Lead, price decimal.Decimal) {
	if s.snaps == nil {
		return
	}

	err := s.snaps.InsertSnapshot(ctx, storage.PriceSnapshot{
		Origin:        lead.Origin,
		Destination:   lead.Destination,
		DepartureDate: lead.DepartureDate,
		BestPrice:     price,
		Currency:      s.currency,
		CapturedAt:    s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("Failed to record price snapshot",
			logging.String("route", lead.Origin+"-"+lead.Destination),
			logging.String("error", err.Error()),
		)
	}
}
