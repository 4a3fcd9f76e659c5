package usecase

import (
	"sync"

	"mailvault-backend/internal/ingest/domain"
)

// RunResult is the terminal outcome of a run. Err is nil only for a completed
// run; a cancelled run carries domain.ErrCancelled. Stored counts the batches
// durably committed before the run ended, which on cancellation or failure is
// exactly what remains in the store and index.
type RunResult struct {
	RunID      string   `json:"run_id"`
	Label      string   `json:"label"`
	MessageIDs []string `json:"message_ids"`
	Stored     int      `json:"stored"`
	// Rejected holds one ErrInvalidRecord-kinded error per record dropped
	// for missing a remote message id. Rejections do not fail the run.
	Rejected []error `json:"-"`
	Err      error   `json:"-"`
}

// RunHandle is the caller's view of one in-flight ingestion run.
type RunHandle struct {
	ID      string
	Mode    string
	control *ControlToken

	mu       sync.RWMutex
	progress domain.Progress
	result   *RunResult
	done     chan struct{}
}

func newRunHandle(id, mode string) *RunHandle {
	return &RunHandle{
		ID:      id,
		Mode:    mode,
		control: NewControlToken(),
		progress: domain.Progress{
			Phase: domain.PhaseCollecting,
		},
		done: make(chan struct{}),
	}
}

// Progress returns a snapshot of the run's counters.
func (h *RunHandle) Progress() domain.Progress {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.progress
}

// Paused reports whether the run is suspended awaiting a decision.
func (h *RunHandle) Paused() bool {
	return h.control.Paused()
}

// RequestPause suspends the run at its next gate.
func (h *RunHandle) RequestPause() {
	h.control.RequestPause()
}

// Resume continues a paused run.
func (h *RunHandle) Resume() error {
	return h.control.Decide(DecisionContinue)
}

// Cancel aborts the run at its next gate. Batches already committed stay in
// the store and index.
func (h *RunHandle) Cancel() {
	h.control.RequestCancel()
}

// Done is closed when the run reaches a terminal state.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Result returns the terminal outcome, or nil while the run is in flight.
func (h *RunHandle) Result() *RunResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.result
}

func (h *RunHandle) update(mutate func(p *domain.Progress)) domain.Progress {
	h.mu.Lock()
	mutate(&h.progress)
	snapshot := h.progress
	h.mu.Unlock()
	return snapshot
}

func (h *RunHandle) finish(result *RunResult) {
	h.mu.Lock()
	h.result = result
	h.mu.Unlock()
	close(h.done)
}

func (h *RunHandle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
