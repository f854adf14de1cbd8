package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thomaslazar/pihole-dnspropagate/internal/domain/teleporter"
	"github.com/thomaslazar/pihole-dnspropagate/internal/ports"
)

// ErrRunInProgress is returned when another run holds the run flag.
var ErrRunInProgress = errors.New("a synchronization run is already in progress")

// Outcome classifies a guarded run for callers such as the CLI.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomePartialFailure
	OutcomeFailed
	OutcomeRejected
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartialFailure:
		return "partial_failure"
	case OutcomeFailed:
		return "failed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeCanceled:
		return "canceled"
	}
	return "unknown"
}

// ExitCode maps the outcome to the process exit status of sync-now.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return 0
	case OutcomePartialFailure:
		return 2
	case OutcomeFailed:
		return 1
	}
	return -1
}

// Runner invokes the coordinator under the exclusive run flag.
type Runner struct {
	coordinator ports.Coordinator
	state       *RunState
	now         func() time.Time
}

func NewRunner(coordinator ports.Coordinator, state *RunState) *Runner {
	return &Runner{coordinator: coordinator, state: state, now: time.Now}
}

// RunOnce performs one guarded synchronization. The run flag is always
// released before returning.
func (r *Runner) RunOnce(ctx context.Context, dryRun bool) (Outcome, *teleporter.SyncResult, error) {
	if !r.state.TryMarkRunning() {
		return OutcomeRejected, nil, ErrRunInProgress
	}
	defer r.state.MarkIdle()

	result, err := r.coordinator.Synchronize(ctx, dryRun)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCanceled, nil, err
		}
		r.state.MarkFailure(r.now().UTC())
		return OutcomeFailed, nil, err
	}

	r.state.RecordResult(result)
	if !result.AllSucceeded() {
		r.state.MarkFailure(r.now().UTC())
		return OutcomePartialFailure, result, nil
	}
	r.state.MarkSuccess(r.now().UTC())
	log.Debug().Str("run_id", result.RunID).Msg("scheduler.run_succeeded")
	return OutcomeSuccess, result, nil
}
