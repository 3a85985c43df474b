package alerts

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"farearound/internal/common/logging"
)

// Scheduler runs the price-drop batch on a cron schedule in-process.
type Scheduler struct {
	service *Service
	cron    *cron.Cron
	spec    string
	logger  logging.Logger
}

// NewScheduler validates the cron expression (standard 5-field form) and
// prepares a scheduler around the given service.
func NewScheduler(service *Service, spec string, logger logging.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid alerts cron expression %q: %w", spec, err)
	}

	return &Scheduler{
		service: service,
		cron:    cron.New(),
		spec:    spec,
		logger:  logger,
	}, nil
}

// Start registers the batch job and begins scheduling. Overlapping runs are
// not a concern at the configured cadence; each run is independent.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		summary, err := s.service.CheckPriceDrops(context.Background())
		if err != nil {
			s.logger.Error("Scheduled price drop check failed", err)
			return
		}
		s.logger.Info("Scheduled price drop check completed",
			logging.Int("leads_checked", summary.LeadsChecked),
			logging.Int("emails_sent", summary.EmailsSent),
			logging.Int("updated", summary.Updated),
			logging.Int("errors", summary.Errors),
		)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule alerts job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Alert scheduler started", logging.String("cron", s.spec))
	return nil
}

// Stop halts scheduling; a run already in progress completes.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Alert scheduler stopped")
}
