package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"mailvault-backend/internal/ingest/domain"
	"mailvault-backend/internal/ingest/repository"
	"mailvault-backend/pkg/sse"

	"github.com/google/uuid"
)

// StartRequest describes one ingestion run.
type StartRequest struct {
	Source     domain.MailSource
	Mode       string   // domain.ModeFolderScoped or domain.ModeExplicitSelection
	MessageIDs []string // explicit-selection: the fixed id list
	FolderIDs  []string // folder-scoped: folders to ingest
	FolderCap  int      // folder-scoped: most recent N messages per folder
	BatchSize  int      // messages per store/index write
	PageSize   int      // messages per remote fetch
}

// Tuning holds the orchestrator defaults applied when a request leaves a
// knob unset.
type Tuning struct {
	BatchSize        int
	PageSize         int
	FolderCap        int
	IndexingPhaseMin time.Duration
}

// Orchestrator drives ingestion runs: collect from the remote source, store
// and index in batches, report progress. One run at a time; a second Start
// while a run is in flight returns domain.ErrRunInProgress.
type Orchestrator struct {
	repo    repository.MessageRepository
	index   VectorIndex
	sse     *sse.Manager
	tuning  Tuning

	mu      sync.Mutex
	active  *RunHandle
	handles map[string]*RunHandle
}

// NewOrchestrator creates a new ingestion orchestrator. sseManager may be nil
// when no live progress streaming is wanted.
func NewOrchestrator(repo repository.MessageRepository, index VectorIndex, sseManager *sse.Manager, tuning Tuning) *Orchestrator {
	if tuning.BatchSize <= 0 {
		tuning.BatchSize = 20
	}
	if tuning.PageSize <= 0 {
		tuning.PageSize = 25
	}
	if tuning.FolderCap <= 0 {
		tuning.FolderCap = 100
	}
	return &Orchestrator{
		repo:    repo,
		index:   index,
		sse:     sseManager,
		tuning:  tuning,
		handles: make(map[string]*RunHandle),
	}
}

// Start begins a run and returns its handle. The run proceeds in the
// background; callers observe it through the handle or the SSE stream.
func (o *Orchestrator) Start(req StartRequest) (*RunHandle, error) {
	if req.Source == nil {
		return nil, fmt.Errorf("no mail source configured")
	}
	switch req.Mode {
	case domain.ModeExplicitSelection, domain.ModeFolderScoped:
	default:
		return nil, fmt.Errorf("unknown ingestion mode %q", req.Mode)
	}
	if req.Mode == domain.ModeExplicitSelection && len(req.MessageIDs) == 0 {
		return nil, domain.WrapError(domain.ErrNoItemsSelected, "No messages selected", nil)
	}
	if req.Mode == domain.ModeFolderScoped && len(req.FolderIDs) == 0 {
		return nil, domain.WrapError(domain.ErrNoItemsSelected, "No folders selected", nil)
	}

	if req.BatchSize <= 0 {
		req.BatchSize = o.tuning.BatchSize
	}
	if req.PageSize <= 0 {
		req.PageSize = o.tuning.PageSize
	}
	if req.FolderCap <= 0 {
		req.FolderCap = o.tuning.FolderCap
	}

	o.mu.Lock()
	if o.active != nil && !o.active.finished() {
		o.mu.Unlock()
		return nil, domain.WrapError(domain.ErrRunInProgress, "An ingestion run is already in progress", nil)
	}
	handle := newRunHandle(uuid.New().String(), req.Mode)
	o.active = handle
	o.handles[handle.ID] = handle
	o.mu.Unlock()

	go o.run(handle, req)

	return handle, nil
}

// Run returns a known run handle, live or finished.
func (o *Orchestrator) Run(runID string) (*RunHandle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.handles[runID]
	return h, ok
}

func (o *Orchestrator) run(handle *RunHandle, req StartRequest) {
	// Detached from any HTTP request lifetime.
	ctx := context.Background()

	result := &RunResult{RunID: handle.ID}

	records, rejected, err := o.collect(ctx, handle, req)
	result.Rejected = rejected
	if len(rejected) > 0 {
		for _, rerr := range rejected {
			log.Printf("[Ingest] Run %s: %v", handle.ID, rerr)
		}
		o.publish(handle, handle.update(func(p *domain.Progress) {
			p.Rejected = len(rejected)
		}))
	}
	if err == nil && len(records) == 0 {
		err = domain.WrapError(domain.ErrNoItemsSelected, "No messages matched the selection", nil)
	}
	if err != nil {
		o.fail(handle, result, err)
		return
	}

	createdAt := time.Now()
	run := &domain.IngestionRun{
		RunID:     handle.ID,
		Label:     domain.RunLabel(req.Mode, createdAt),
		Mode:      req.Mode,
		CreatedAt: createdAt,
	}
	result.Label = run.Label

	o.publish(handle, handle.update(func(p *domain.Progress) {
		p.Phase = domain.PhaseStoring
	}))

	for start := 0; start < len(records); start += req.BatchSize {
		end := start + req.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		// Gate before each batch commit; a batch that has started always
		// completes before cancellation takes effect.
		if err := handle.control.Gate(ctx); err != nil {
			o.fail(handle, result, err)
			return
		}

		// Store write and index write are treated as a unit: if either
		// fails the batch does not count and the run aborts. Prior batches
		// remain committed.
		stored, err := o.repo.UpsertMessages(handle.ID, run, batch)
		if err != nil {
			o.fail(handle, result, err)
			return
		}
		if err := o.index.UpsertMessages(ctx, batch); err != nil {
			o.fail(handle, result, err)
			return
		}

		result.Stored += stored
		for _, rec := range batch {
			result.MessageIDs = append(result.MessageIDs, rec.MessageID)
		}

		o.publish(handle, handle.update(func(p *domain.Progress) {
			p.Stored = result.Stored
		}))
	}

	// Indexing happens inside the batches above; this phase is a visible
	// milestone with a small floor so the transition is perceptible.
	o.publish(handle, handle.update(func(p *domain.Progress) {
		p.Phase = domain.PhaseIndexing
	}))
	if o.tuning.IndexingPhaseMin > 0 {
		time.Sleep(o.tuning.IndexingPhaseMin)
	}

	snapshot := handle.update(func(p *domain.Progress) {
		p.Phase = domain.PhaseDone
	})
	handle.finish(result)
	o.publish(handle, snapshot)
	log.Printf("[Ingest] Run %s done: %d messages stored", handle.ID, result.Stored)
}

// collect gathers the full, deduplicated record set for the run. The second
// return value carries per-record rejections that did not stop the run.
func (o *Orchestrator) collect(ctx context.Context, handle *RunHandle, req StartRequest) ([]*domain.MessageRecord, []error, error) {
	var records []*domain.MessageRecord
	var err error

	if req.Mode == domain.ModeExplicitSelection {
		records, err = o.collectExplicit(ctx, handle, req)
	} else {
		records, err = o.collectFolders(ctx, handle, req)
	}
	if err != nil {
		return nil, nil, err
	}

	deduped, rejected := dedupe(records)
	return deduped, rejected, nil
}

func (o *Orchestrator) collectExplicit(ctx context.Context, handle *RunHandle, req StartRequest) ([]*domain.MessageRecord, error) {
	// The id list is already known: the expected total is exact and the
	// collected counter is complete up front.
	total := len(req.MessageIDs)
	o.publish(handle, handle.update(func(p *domain.Progress) {
		p.ExpectedTotal = &total
		p.Collected = total
	}))

	records := make([]*domain.MessageRecord, 0, total)
	for start := 0; start < total; start += req.PageSize {
		end := start + req.PageSize
		if end > total {
			end = total
		}

		if err := handle.control.Gate(ctx); err != nil {
			return nil, err
		}

		chunk, err := req.Source.GetMessagesByIDs(ctx, req.MessageIDs[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to fetch selected messages: %w", err)
		}
		records = append(records, chunk...)
	}

	return records, nil
}

func (o *Orchestrator) collectFolders(ctx context.Context, handle *RunHandle, req StartRequest) ([]*domain.MessageRecord, error) {
	if err := handle.control.Gate(ctx); err != nil {
		return nil, err
	}

	folders, err := req.Source.ListFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	counts := make(map[string]int64, len(folders))
	for _, f := range folders {
		counts[f.ID] = f.TotalItemCount
	}

	// Approximate denominator: folder counts can be stale, so the estimate
	// may exceed what is actually collected. Callers clamp, not us.
	estimate := 0
	for _, folderID := range req.FolderIDs {
		reported, known := counts[folderID]
		capped := req.FolderCap
		if known && reported < int64(capped) {
			capped = int(reported)
		}
		estimate += capped
	}
	o.publish(handle, handle.update(func(p *domain.Progress) {
		p.ExpectedTotal = &estimate
	}))

	var records []*domain.MessageRecord
	for _, folderID := range req.FolderIDs {
		remaining := req.FolderCap
		pageToken := ""

		for remaining > 0 {
			if err := handle.control.Gate(ctx); err != nil {
				return nil, err
			}

			pageSize := req.PageSize
			if pageSize > remaining {
				pageSize = remaining
			}

			page, err := req.Source.ListMessages(ctx, folderID, pageSize, pageToken)
			if err != nil {
				return nil, fmt.Errorf("failed to list messages in folder %s: %w", folderID, err)
			}

			taken := page.Messages
			if len(taken) > remaining {
				taken = taken[:remaining]
			}
			records = append(records, taken...)
			remaining -= len(taken)

			collected := len(records)
			o.publish(handle, handle.update(func(p *domain.Progress) {
				p.Collected = collected
			}))

			pageToken = page.NextPageToken
			if pageToken == "" || len(page.Messages) == 0 {
				break
			}
		}
	}

	return records, nil
}

// dedupe keeps the first occurrence of each message id. A record without a
// remote id is rejected individually with an ErrInvalidRecord-kinded error
// rather than stored under a synthetic key, which would break dedup on later
// runs; the rest of the batch continues.
func dedupe(records []*domain.MessageRecord) ([]*domain.MessageRecord, []error) {
	seen := make(map[string]struct{}, len(records))
	out := make([]*domain.MessageRecord, 0, len(records))
	var rejected []error

	for i, rec := range records {
		if rec.MessageID == "" {
			rejected = append(rejected,
				domain.WrapError(domain.ErrInvalidRecord,
					fmt.Sprintf("Rejected record %d (%q)", i, rec.Subject), nil))
			continue
		}
		if _, dup := seen[rec.MessageID]; dup {
			continue
		}
		seen[rec.MessageID] = struct{}{}
		out = append(out, rec)
	}

	return out, rejected
}

func isCancelled(err error) bool {
	return errors.Is(err, domain.ErrCancelled)
}

func (o *Orchestrator) fail(handle *RunHandle, result *RunResult, err error) {
	phase := domain.PhaseFailed
	if isCancelled(err) {
		phase = domain.PhaseCancelled
		err = domain.WrapError(domain.ErrCancelled, "Ingestion cancelled; some items may already be indexed", nil)
		log.Printf("[Ingest] Run %s cancelled after %d stored messages", handle.ID, result.Stored)
	} else {
		log.Printf("[Ingest] Run %s failed after %d stored messages: %v", handle.ID, result.Stored, err)
	}

	result.Err = err
	snapshot := handle.update(func(p *domain.Progress) {
		p.Phase = phase
		if phase == domain.PhaseFailed {
			p.Error = err.Error()
		}
	})
	handle.finish(result)
	o.publish(handle, snapshot)
}

func (o *Orchestrator) publish(handle *RunHandle, snapshot domain.Progress) {
	if o.sse == nil {
		return
	}
	o.sse.Publish(handle.ID, "progress", snapshot)
}
