package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/thomaslazar/pihole-dnspropagate/internal/domain/teleporter"
)

// mockCoordinator is a mock implementation of ports.Coordinator
type mockCoordinator struct {
	mu      sync.Mutex
	calls   int
	dryRuns []bool
	result  *teleporter.SyncResult
	err     error
	// block, when set, is closed by the test to let Synchronize return.
	block   chan struct{}
	started chan struct{}
}

func (m *mockCoordinator) Synchronize(ctx context.Context, dryRun bool) (*teleporter.SyncResult, error) {
	m.mu.Lock()
	m.calls++
	m.dryRuns = append(m.dryRuns, dryRun)
	block, started := m.block, m.started
	m.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockCoordinator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func resultWith(statuses ...teleporter.Status) *teleporter.SyncResult {
	r := &teleporter.SyncResult{RunID: "run", Primary: teleporter.NodeOutcome{Node: "primary", Status: teleporter.StatusSuccess}}
	for _, s := range statuses {
		r.Secondaries = append(r.Secondaries, teleporter.NodeOutcome{Node: "n", Status: s})
	}
	return r
}

func TestRunner_RunOnce(t *testing.T) {
	tests := []struct {
		name       string
		result     *teleporter.SyncResult
		err        error
		outcome    Outcome
		exitCode   int
		wantStatus RunStatus
	}{
		{
			name:       "all secondaries synchronized",
			result:     resultWith(teleporter.StatusSuccess, teleporter.StatusSuccess),
			outcome:    OutcomeSuccess,
			exitCode:   0,
			wantStatus: StatusSuccess,
		},
		{
			name:       "dry run skipped nodes",
			result:     resultWith(teleporter.StatusSkipped),
			outcome:    OutcomeSuccess,
			exitCode:   0,
			wantStatus: StatusSuccess,
		},
		{
			name:       "one secondary failed",
			result:     resultWith(teleporter.StatusSuccess, teleporter.StatusFailed),
			outcome:    OutcomePartialFailure,
			exitCode:   2,
			wantStatus: StatusFailure,
		},
		{
			name:       "primary unavailable",
			err:        errors.New("primary records unavailable"),
			outcome:    OutcomeFailed,
			exitCode:   1,
			wantStatus: StatusFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewRunState()
			runner := NewRunner(&mockCoordinator{result: tt.result, err: tt.err}, state)

			outcome, result, err := runner.RunOnce(context.Background(), false)

			if outcome != tt.outcome {
				t.Errorf("Expected outcome %s, got %s", tt.outcome, outcome)
			}
			if outcome.ExitCode() != tt.exitCode {
				t.Errorf("Expected exit code %d, got %d", tt.exitCode, outcome.ExitCode())
			}
			if (err != nil) != (tt.err != nil) {
				t.Errorf("Expected error %v, got %v", tt.err, err)
			}
			if tt.result != nil && result != tt.result {
				t.Error("Expected the coordinator result to be returned")
			}
			snap := state.Snapshot()
			if snap.Status != tt.wantStatus {
				t.Errorf("Expected status %s, got %s", tt.wantStatus, snap.Status)
			}
			if snap.Running {
				t.Error("Expected run flag to be released")
			}
		})
	}
}

func TestRunner_RejectsOverlappingRun(t *testing.T) {
	coordinator := &mockCoordinator{
		result:  resultWith(teleporter.StatusSuccess),
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	state := NewRunState()
	runner := NewRunner(coordinator, state)

	done := make(chan Outcome)
	go func() {
		outcome, _, _ := runner.RunOnce(context.Background(), false)
		done <- outcome
	}()
	<-coordinator.started

	outcome, result, err := runner.RunOnce(context.Background(), true)
	if outcome != OutcomeRejected || !errors.Is(err, ErrRunInProgress) || result != nil {
		t.Errorf("Expected rejection, got %s %v %v", outcome, result, err)
	}
	if outcome.ExitCode() != -1 {
		t.Errorf("Expected exit code -1, got %d", outcome.ExitCode())
	}

	close(coordinator.block)
	if first := <-done; first != OutcomeSuccess {
		t.Errorf("Expected first run to succeed, got %s", first)
	}
	if coordinator.callCount() != 1 {
		t.Errorf("Expected a single coordinator call, got %d", coordinator.callCount())
	}
}

func TestRunner_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	state := NewRunState()
	runner := NewRunner(&mockCoordinator{err: context.Canceled}, state)

	outcome, _, err := runner.RunOnce(ctx, false)

	if outcome != OutcomeCanceled || !errors.Is(err, context.Canceled) {
		t.Errorf("Expected canceled outcome, got %s %v", outcome, err)
	}
	snap := state.Snapshot()
	if snap.LastFailure != nil {
		t.Error("Expected cancellation not to be recorded as a failure")
	}
	if snap.Running {
		t.Error("Expected run flag to be released")
	}
}

func TestRunner_PassesDryRun(t *testing.T) {
	coordinator := &mockCoordinator{result: resultWith()}
	runner := NewRunner(coordinator, NewRunState())

	_, _, _ = runner.RunOnce(context.Background(), true)

	if len(coordinator.dryRuns) != 1 || !coordinator.dryRuns[0] {
		t.Errorf("Expected dry run to be forwarded, got %v", coordinator.dryRuns)
	}
}
