package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const jobTimeout = 2 * time.Minute

// Maintainer runs one maintenance pass
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// Scheduler runs database maintenance on a cron schedule
type Scheduler struct {
	cron   *cron.Cron
	target Maintainer
	log    *logrus.Logger
}

// NewScheduler registers the maintenance job for spec.
// Standard five field specs and descriptors such as @daily are accepted.
func NewScheduler(spec string, target Maintainer, log *logrus.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		target: target,
		log:    log,
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start launches the cron goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Infof("Maintenance scheduled, next run at %s", e.Next.Format(time.RFC3339))
	}
}

// Stop halts the scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce performs a single maintenance pass
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	if err := s.target.Maintain(ctx); err != nil {
		s.log.Errorf("Maintenance failed: %v", err)
		return
	}
	s.log.Infof("Maintenance finished in %s", time.Since(start))
}
