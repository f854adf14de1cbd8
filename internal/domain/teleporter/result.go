package teleporter

import "time"

// Status is the per-node outcome of a synchronization run.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
	StatusSkipped Status = "Skipped"
)

// NodeOutcome reports what happened to one node during a run.
type NodeOutcome struct {
	Node   string        `json:"node"`
	Status Status        `json:"status"`
	Before *RecordCounts `json:"before,omitempty"`
	After  *RecordCounts `json:"after,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// SyncResult aggregates the primary outcome and the secondary outcomes in
// configured order.
type SyncResult struct {
	RunID       string        `json:"run_id"`
	DryRun      bool          `json:"dry_run"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Primary     NodeOutcome   `json:"primary"`
	Secondaries []NodeOutcome `json:"secondaries"`
}

// Failed returns the secondaries whose outcome is StatusFailed.
func (r *SyncResult) Failed() []NodeOutcome {
	var failed []NodeOutcome
	for _, s := range r.Secondaries {
		if s.Status == StatusFailed {
			failed = append(failed, s)
		}
	}
	return failed
}

// AllSucceeded is true when no secondary failed. Skipped (dry run) counts as success.
func (r *SyncResult) AllSucceeded() bool {
	return len(r.Failed()) == 0
}

// CountsPtr is a small helper for filling NodeOutcome.Before/After.
func CountsPtr(c RecordCounts) *RecordCounts {
	return &c
}
