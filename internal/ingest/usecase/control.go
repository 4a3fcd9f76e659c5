package usecase

import (
	"context"
	"fmt"
	"sync"

	"mailvault-backend/internal/ingest/domain"
)

// Decision is the outcome of a soft pause.
type Decision int

const (
	DecisionContinue Decision = iota
	DecisionCancel
)

// ControlToken carries pause and cancel requests into a run. Cancellation is
// two-level: RequestPause suspends the run at the next gate until Decide is
// called; RequestCancel aborts at the next gate unconditionally. The token is
// owned by the run handle, never shared global state.
type ControlToken struct {
	mu           sync.Mutex
	pausePending bool
	paused       bool
	cancelled    bool
	decision     chan Decision
}

func NewControlToken() *ControlToken {
	return &ControlToken{
		decision: make(chan Decision, 1),
	}
}

// RequestPause asks the run to suspend at its next gate. No-op if a pause is
// already pending or the run is already cancelled.
func (t *ControlToken) RequestPause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.pausePending = true
}

// Decide fulfils a pending pause exactly once: DecisionContinue resumes the
// run, DecisionCancel aborts it.
func (t *ControlToken) Decide(d Decision) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.pausePending {
		return fmt.Errorf("no pause pending")
	}

	select {
	case t.decision <- d:
		return nil
	default:
		return fmt.Errorf("decision already supplied")
	}
}

// RequestCancel is the hard level: the run aborts at its next gate without
// waiting for a decision. Also unblocks a run suspended in a soft pause.
func (t *ControlToken) RequestCancel() {
	t.mu.Lock()
	t.cancelled = true
	t.pausePending = true
	t.mu.Unlock()

	select {
	case t.decision <- DecisionCancel:
	default:
	}
}

// Paused reports whether the run is currently suspended at a gate.
func (t *ControlToken) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Gate is the cooperative checkpoint placed before every remote page fetch
// and every batch commit. Returns domain.ErrCancelled when the run must stop.
func (t *ControlToken) Gate(ctx context.Context) error {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return domain.ErrCancelled
	}
	if !t.pausePending {
		t.mu.Unlock()
		return nil
	}
	t.paused = true
	t.mu.Unlock()

	select {
	case <-ctx.Done():
		t.mu.Lock()
		t.paused = false
		t.mu.Unlock()
		return ctx.Err()
	case d := <-t.decision:
		t.mu.Lock()
		t.paused = false
		t.pausePending = false
		if d == DecisionCancel {
			t.cancelled = true
			t.mu.Unlock()
			return domain.ErrCancelled
		}
		t.mu.Unlock()
		return nil
	}
}
