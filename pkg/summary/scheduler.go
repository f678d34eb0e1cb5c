package summary

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/ghanavoice/ledger/internal/logging"
)

// Scheduler drives Service.RecomputeToday on a cron schedule. Saving a
// transaction does not trigger a recompute, so this schedule is what keeps
// the daily summary current.
type Scheduler struct {
	svc  *Service
	cron *cron.Cron
	log  logging.Logger
}

// NewScheduler builds a Scheduler over svc.
func NewScheduler(svc *Service, log logging.Logger) *Scheduler {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Scheduler{svc: svc, cron: cron.New(), log: log}
}

// Start registers the recompute job on spec (standard 5-field cron syntax)
// and starts the scheduler's background goroutine.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.svc.RecomputeToday(ctx); err != nil {
			s.log.Error("summary: scheduled recompute failed", "err", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
