package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/thomaslazar/pihole-dnspropagate/internal/domain/teleporter"
)

// RunStatus is the coarse state reported by the health endpoint.
type RunStatus string

const (
	StatusIdle    RunStatus = "Idle"
	StatusRunning RunStatus = "Running"
	StatusSuccess RunStatus = "Success"
	StatusFailure RunStatus = "Failure"
)

// RunState is the process-wide exclusive run flag plus the bookkeeping shown
// on /healthz. A new run is rejected, never queued, while one is active.
type RunState struct {
	running atomic.Bool

	mu          sync.RWMutex
	status      RunStatus
	lastSuccess *time.Time
	lastFailure *time.Time
	lastResult  *teleporter.SyncResult
}

// StateSnapshot is a point-in-time copy of RunState.
type StateSnapshot struct {
	Status      RunStatus              `json:"status"`
	Running     bool                   `json:"running"`
	LastSuccess *time.Time             `json:"lastSuccess"`
	LastFailure *time.Time             `json:"lastFailure"`
	LastResult  *teleporter.SyncResult `json:"lastResult,omitempty"`
}

func NewRunState() *RunState {
	return &RunState{status: StatusIdle}
}

// TryMarkRunning flips Idle to Running. It returns false if a run is already active.
func (s *RunState) TryMarkRunning() bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	s.status = StatusRunning
	s.mu.Unlock()
	return true
}

func (s *RunState) MarkSuccess(at time.Time) {
	s.mu.Lock()
	s.lastSuccess = &at
	s.status = StatusSuccess
	s.mu.Unlock()
	s.MarkIdle()
}

func (s *RunState) MarkFailure(at time.Time) {
	s.mu.Lock()
	s.lastFailure = &at
	s.status = StatusFailure
	s.mu.Unlock()
	s.MarkIdle()
}

// MarkIdle releases the run flag without touching the last outcome.
func (s *RunState) MarkIdle() {
	s.running.Store(false)
}

func (s *RunState) IsRunning() bool {
	return s.running.Load()
}

// RecordResult keeps result for health reporting.
func (s *RunState) RecordResult(result *teleporter.SyncResult) {
	s.mu.Lock()
	s.lastResult = result
	s.mu.Unlock()
}

func (s *RunState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateSnapshot{
		Status:      s.status,
		Running:     s.running.Load(),
		LastSuccess: s.lastSuccess,
		LastFailure: s.lastFailure,
		LastResult:  s.lastResult,
	}
}
