package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const fallbackInterval = 5 * time.Minute

// Options configures when the scheduler triggers runs.
type Options struct {
	Interval time.Duration
	// Cron is a five-field expression evaluated in UTC. It takes precedence
	// over Interval when it parses.
	Cron   string
	DryRun bool
}

// Scheduler triggers runs on a cron schedule or a fixed interval.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	schedule cron.Schedule
	dryRun   bool
	now      func() time.Time
}

func NewScheduler(runner *Runner, opts Options) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		interval: opts.Interval,
		dryRun:   opts.DryRun,
		now:      time.Now,
	}
	if s.interval <= 0 {
		s.interval = fallbackInterval
	}
	if expr := strings.TrimSpace(opts.Cron); expr != "" {
		schedule, err := parseCron(expr)
		if err != nil {
			log.Error().Err(err).Str("expression", expr).Dur("interval", s.interval).Msg("scheduler.invalid_cron")
		} else {
			s.schedule = schedule
		}
	}
	return s
}

func parseCron(expr string) (cron.Schedule, error) {
	if !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
		expr = "CRON_TZ=UTC " + expr
	}
	return cron.ParseStandard(expr)
}

// NextDelay returns how long to wait from now until the next run.
func (s *Scheduler) NextDelay(now time.Time) time.Duration {
	if s.schedule != nil {
		next := s.schedule.Next(now.UTC())
		if !next.IsZero() {
			return max(next.Sub(now), 0)
		}
	}
	return s.interval
}

// Run loops until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		delay := s.NextDelay(s.now())
		log.Info().Dur("delay", delay).Msg("scheduler.next_run_in")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("scheduler.stopped")
			return
		case <-timer.C:
		}

		s.attempt(ctx)
	}
}

func (s *Scheduler) attempt(ctx context.Context) {
	outcome, _, err := s.runner.RunOnce(ctx, s.dryRun)
	switch {
	case errors.Is(err, ErrRunInProgress):
		log.Warn().Msg("scheduler.sync_skipped")
	case outcome == OutcomeCanceled:
		log.Info().Err(err).Msg("scheduler.sync_canceled")
	case err != nil:
		log.Error().Err(err).Msg("scheduler.sync_failed")
	case outcome == OutcomePartialFailure:
		log.Warn().Msg("scheduler.sync_partial_failure")
	}
}
