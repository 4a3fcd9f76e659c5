package domain

import "errors"

// Error kinds. Callers distinguish outcomes with errors.Is against these
// sentinels; cancellation in particular is never signalled or matched through
// message text.
var (
	ErrInvalidRecord        = errors.New("record has no remote message id")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	ErrNoItemsSelected      = errors.New("no items selected")
	ErrCancelled            = errors.New("cancelled by user")
	ErrSynthesisFailed      = errors.New("answer synthesis failed")
	ErrRunInProgress        = errors.New("an ingestion run is already in progress")
)

// Error carries a short user-facing summary separately from the underlying
// technical cause, so the UI can disclose detail progressively.
type Error struct {
	Kind    error
	Summary string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Summary + ": " + e.Cause.Error()
	}
	return e.Summary
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// WrapError tags cause with a kind and a human-readable summary.
func WrapError(kind error, summary string, cause error) *Error {
	return &Error{Kind: kind, Summary: summary, Cause: cause}
}
