// Package scheduler runs the service's periodic maintenance jobs.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/cbattlegear/azure-data-chat/log"
)

// Job is a named maintenance task with a cron schedule. Spec takes a
// cron expression or a descriptor like "@every 15m".
type Job struct {
	Name string
	Spec string
	Run  func() error
}

// Scheduler runs registered jobs until stopped. A job still running at
// its next tick skips that tick instead of piling up.
type Scheduler struct {
	cron *cron.Cron
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
	}
}

// Add registers a job. A failing run is logged and retried at the next
// tick.
func (s *Scheduler) Add(job Job) error {
	_, err := s.cron.AddFunc(job.Spec, func() {
		log.Debug().Str("job", job.Name).Msg("job started")
		if err := job.Run(); err != nil {
			log.Error().Err(err).Str("job", job.Name).Msg("job failed")
			return
		}
		log.Debug().Str("job", job.Name).Msg("job finished")
	})
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.Name, err)
	}
	log.Info().Str("job", job.Name).Str("spec", job.Spec).Msg("job registered")
	return nil
}

// Start launches the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Msg("scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}
