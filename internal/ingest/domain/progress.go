package domain

// Phase is the orchestrator's current stage within a run.
type Phase string

const (
	PhaseSelecting  Phase = "selecting"
	PhaseCollecting Phase = "collecting"
	PhaseStoring    Phase = "storing"
	PhaseIndexing   Phase = "indexing"
	PhaseDone       Phase = "done"
	PhaseCancelled  Phase = "cancelled"
	PhaseFailed     Phase = "failed"
)

// Progress is a snapshot of a run's counters. ExpectedTotal is nil while the
// total is unknown; for folder-scoped runs it is an approximation and may end
// up larger than the number of items actually collected.
type Progress struct {
	Phase         Phase  `json:"phase"`
	ExpectedTotal *int   `json:"expected_total,omitempty"`
	Collected     int    `json:"collected"`
	Rejected      int    `json:"rejected,omitempty"`
	Stored        int    `json:"stored"`
	Error         string `json:"error,omitempty"`
}
