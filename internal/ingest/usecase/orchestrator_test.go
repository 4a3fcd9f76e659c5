package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"mailvault-backend/internal/ingest/domain"
	"mailvault-backend/internal/ingest/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	folders  []*domain.Folder
	byFolder map[string][]*domain.MessageRecord
	byID     map[string]*domain.MessageRecord

	listErr error
	onPage  func(folderID string, pageToken string)
}

func (s *fakeSource) ListFolders(ctx context.Context) ([]*domain.Folder, error) {
	return s.folders, nil
}

func (s *fakeSource) ListMessages(ctx context.Context, folderID string, pageSize int, pageToken string) (*domain.MessagePage, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.onPage != nil {
		s.onPage(folderID, pageToken)
	}

	all := s.byFolder[folderID]
	start := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "%d", &start)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	page := &domain.MessagePage{Messages: all[start:end]}
	if end < len(all) {
		page.NextPageToken = fmt.Sprintf("%d", end)
	}
	return page, nil
}

func (s *fakeSource) GetMessagesByIDs(ctx context.Context, ids []string) ([]*domain.MessageRecord, error) {
	var out []*domain.MessageRecord
	for _, id := range ids {
		if rec, ok := s.byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeSource) ResolveWebLink(ctx context.Context, id string) (string, error) {
	return "https://mail.example.com/" + id, nil
}

type fakeRepo struct {
	mu       sync.Mutex
	messages map[string]*domain.MessageRecord
	batches  int
	failAt   int // fail the Nth batch (1-based), 0 = never
	onUpsert func(batch int)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{messages: make(map[string]*domain.MessageRecord)}
}

func (r *fakeRepo) UpsertMessages(runID string, run *domain.IngestionRun, records []*domain.MessageRecord) (int, error) {
	r.mu.Lock()
	r.batches++
	batch := r.batches
	if r.failAt > 0 && batch == r.failAt {
		r.mu.Unlock()
		return 0, domain.WrapError(domain.ErrStorageUnavailable, "Could not write message batch", nil)
	}
	stored := 0
	for _, rec := range records {
		if rec.MessageID == "" {
			continue
		}
		row := *rec
		row.RunID = runID
		r.messages[rec.MessageID] = &row
		stored++
	}
	r.mu.Unlock()

	if r.onUpsert != nil {
		r.onUpsert(batch)
	}
	return stored, nil
}

func (r *fakeRepo) GetMessagesByIDs(ids []string) ([]*domain.MessageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.MessageRecord
	for _, id := range ids {
		if rec, ok := r.messages[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListHeaders() ([]*domain.MessageRecord, error) { return nil, nil }

func (r *fakeRepo) Status() (*repository.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &repository.Status{IndexedCount: int64(len(r.messages))}, nil
}

func (r *fakeRepo) ListRuns(limit int) ([]*domain.IngestionRun, error) { return nil, nil }

func (r *fakeRepo) ClearRun(runID string) (int64, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, rec := range r.messages {
		if rec.RunID == runID {
			ids = append(ids, id)
			delete(r.messages, id)
		}
	}
	return int64(len(ids)), ids, nil
}

func (r *fakeRepo) ClearAll() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.messages))
	r.messages = make(map[string]*domain.MessageRecord)
	return n, nil
}

type fakeIndex struct {
	mu      sync.Mutex
	indexed map[string]struct{}
	deleted [][]string
	wiped   int
	failAt  int
	calls   int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{indexed: make(map[string]struct{})}
}

func (f *fakeIndex) UpsertMessages(ctx context.Context, records []*domain.MessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return domain.WrapError(domain.ErrEmbeddingUnavailable, "Could not index batch", nil)
	}
	for _, rec := range records {
		f.indexed[rec.MessageID] = struct{}{}
	}
	return nil
}

func (f *fakeIndex) Delete(ctx context.Context, messageIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageIDs)
	for _, id := range messageIDs {
		delete(f.indexed, id)
	}
	return nil
}

func (f *fakeIndex) DeleteAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wiped++
	f.indexed = make(map[string]struct{})
	return nil
}

func (f *fakeIndex) Count(ctx context.Context) (int, error) {
	return f.count(), nil
}

func (f *fakeIndex) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexed)
}

func makeRecords(prefix string, n int) []*domain.MessageRecord {
	out := make([]*domain.MessageRecord, n)
	for i := 0; i < n; i++ {
		out[i] = &domain.MessageRecord{
			MessageID:  fmt.Sprintf("%s-%03d", prefix, i),
			FolderID:   prefix,
			Subject:    fmt.Sprintf("Subject %d", i),
			Sender:     "sender@example.com",
			ReceivedAt: time.Now().Add(-time.Duration(i) * time.Minute),
			Body:       "body text",
		}
	}
	return out
}

func waitDone(t *testing.T, handle *RunHandle) *RunResult {
	t.Helper()
	select {
	case <-handle.Done():
		return handle.Result()
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish in time")
		return nil
	}
}

func TestExplicitSelectionRun(t *testing.T) {
	records := makeRecords("inbox", 7)
	source := &fakeSource{byID: map[string]*domain.MessageRecord{}}
	ids := make([]string, len(records))
	for i, rec := range records {
		source.byID[rec.MessageID] = rec
		ids[i] = rec.MessageID
	}

	repo := newFakeRepo()
	index := newFakeIndex()
	o := NewOrchestrator(repo, index, nil, Tuning{BatchSize: 3, PageSize: 5})

	handle, err := o.Start(StartRequest{
		Source:     source,
		Mode:       domain.ModeExplicitSelection,
		MessageIDs: ids,
	})
	require.NoError(t, err)

	result := waitDone(t, handle)
	require.NoError(t, result.Err)
	assert.Equal(t, 7, result.Stored)
	assert.Len(t, result.MessageIDs, 7)
	assert.Equal(t, 7, index.count())

	progress := handle.Progress()
	assert.Equal(t, domain.PhaseDone, progress.Phase)
	require.NotNil(t, progress.ExpectedTotal)
	assert.Equal(t, 7, *progress.ExpectedTotal)
	assert.Equal(t, 7, progress.Collected)
	assert.Equal(t, 7, progress.Stored)
}

func TestExplicitSelectionDeduplicates(t *testing.T) {
	rec := makeRecords("inbox", 1)[0]
	source := &fakeSource{byID: map[string]*domain.MessageRecord{rec.MessageID: rec}}

	repo := newFakeRepo()
	o := NewOrchestrator(repo, newFakeIndex(), nil, Tuning{BatchSize: 10, PageSize: 10})

	handle, err := o.Start(StartRequest{
		Source:     source,
		Mode:       domain.ModeExplicitSelection,
		MessageIDs: []string{rec.MessageID, rec.MessageID, rec.MessageID},
	})
	require.NoError(t, err)

	result := waitDone(t, handle)
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Stored)
}

func TestRecordsWithoutIDRejectedRunContinues(t *testing.T) {
	records := makeRecords("inbox", 4)
	records[1].MessageID = ""
	source := &fakeSource{
		folders:  []*domain.Folder{{ID: "inbox", DisplayName: "Inbox", TotalItemCount: 4}},
		byFolder: map[string][]*domain.MessageRecord{"inbox": records},
	}

	repo := newFakeRepo()
	index := newFakeIndex()
	o := NewOrchestrator(repo, index, nil, Tuning{BatchSize: 10, PageSize: 10, FolderCap: 10})

	handle, err := o.Start(StartRequest{
		Source:    source,
		Mode:      domain.ModeFolderScoped,
		FolderIDs: []string{"inbox"},
	})
	require.NoError(t, err)

	result := waitDone(t, handle)
	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Stored)
	assert.Equal(t, 3, index.count())

	require.Len(t, result.Rejected, 1)
	assert.ErrorIs(t, result.Rejected[0], domain.ErrInvalidRecord)
	assert.Equal(t, 1, handle.Progress().Rejected)
}

func TestFolderRunEstimateAndCap(t *testing.T) {
	source := &fakeSource{
		folders: []*domain.Folder{
			{ID: "small", DisplayName: "Small", TotalItemCount: 30},
			{ID: "big", DisplayName: "Big", TotalItemCount: 80},
		},
		byFolder: map[string][]*domain.MessageRecord{
			"small": makeRecords("small", 30),
			"big":   makeRecords("big", 80),
		},
	}

	repo := newFakeRepo()
	o := NewOrchestrator(repo, newFakeIndex(), nil, Tuning{BatchSize: 20, PageSize: 25})

	handle, err := o.Start(StartRequest{
		Source:    source,
		Mode:      domain.ModeFolderScoped,
		FolderIDs: []string{"small", "big"},
		FolderCap: 50,
	})
	require.NoError(t, err)

	result := waitDone(t, handle)
	require.NoError(t, result.Err)

	// min(50, 30) + min(50, 80)
	progress := handle.Progress()
	require.NotNil(t, progress.ExpectedTotal)
	assert.Equal(t, 80, *progress.ExpectedTotal)
	assert.Equal(t, 80, result.Stored)
}

func TestFolderRunStaleCountOvershoot(t *testing.T) {
	// The folder reports 40 but actually has 10; the estimate overshoots and
	// the run still completes with what was really there.
	source := &fakeSource{
		folders: []*domain.Folder{
			{ID: "inbox", DisplayName: "Inbox", TotalItemCount: 40},
		},
		byFolder: map[string][]*domain.MessageRecord{
			"inbox": makeRecords("inbox", 10),
		},
	}

	o := NewOrchestrator(newFakeRepo(), newFakeIndex(), nil, Tuning{BatchSize: 20, PageSize: 25})
	handle, err := o.Start(StartRequest{
		Source:    source,
		Mode:      domain.ModeFolderScoped,
		FolderIDs: []string{"inbox"},
		FolderCap: 50,
	})
	require.NoError(t, err)

	result := waitDone(t, handle)
	require.NoError(t, result.Err)

	progress := handle.Progress()
	require.NotNil(t, progress.ExpectedTotal)
	assert.Equal(t, 40, *progress.ExpectedTotal)
	assert.Equal(t, 10, result.Stored)
	assert.Equal(t, 10, progress.Collected)
}

func TestEmptySelectionFailsWithoutRun(t *testing.T) {
	o := NewOrchestrator(newFakeRepo(), newFakeIndex(), nil, Tuning{})

	_, err := o.Start(StartRequest{
		Source: &fakeSource{},
		Mode:   domain.ModeExplicitSelection,
	})
	assert.ErrorIs(t, err, domain.ErrNoItemsSelected)
}

func TestEmptyFolderYieldsNoItems(t *testing.T) {
	source := &fakeSource{
		folders:  []*domain.Folder{{ID: "empty", DisplayName: "Empty"}},
		byFolder: map[string][]*domain.MessageRecord{"empty": nil},
	}

	repo := newFakeRepo()
	o := NewOrchestrator(repo, newFakeIndex(), nil, Tuning{})
	handle, err := o.Start(StartRequest{
		Source:    source,
		Mode:      domain.ModeFolderScoped,
		FolderIDs: []string{"empty"},
	})
	require.NoError(t, err)

	result := waitDone(t, handle)
	assert.ErrorIs(t, result.Err, domain.ErrNoItemsSelected)
	assert.Equal(t, domain.PhaseFailed, handle.Progress().Phase)
	assert.Equal(t, 0, repo.batches)
}

func TestSecondRunRejectedWhileActive(t *testing.T) {
	release := make(chan struct{})
	source := &fakeSource{
		folders:  []*domain.Folder{{ID: "inbox", DisplayName: "Inbox", TotalItemCount: 5}},
		byFolder: map[string][]*domain.MessageRecord{"inbox": makeRecords("inbox", 5)},
		onPage: func(string, string) {
			<-release
		},
	}

	o := NewOrchestrator(newFakeRepo(), newFakeIndex(), nil, Tuning{})
	handle, err := o.Start(StartRequest{
		Source:    source,
		Mode:      domain.ModeFolderScoped,
		FolderIDs: []string{"inbox"},
	})
	require.NoError(t, err)

	_, err = o.Start(StartRequest{
		Source:     source,
		Mode:       domain.ModeExplicitSelection,
		MessageIDs: []string{"x"},
	})
	assert.ErrorIs(t, err, domain.ErrRunInProgress)

	close(release)
	waitDone(t, handle)

	// After the run finishes a new one is allowed again.
	source2 := &fakeSource{byID: map[string]*domain.MessageRecord{
		"x": {MessageID: "x", Body: "b"},
	}}
	handle2, err := o.Start(StartRequest{
		Source:     source2,
		Mode:       domain.ModeExplicitSelection,
		MessageIDs: []string{"x"},
	})
	require.NoError(t, err)
	waitDone(t, handle2)
}

func TestCancelKeepsCommittedBatches(t *testing.T) {
	records := makeRecords("inbox", 10)
	source := &fakeSource{byID: map[string]*domain.MessageRecord{}}
	ids := make([]string, len(records))
	for i, rec := range records {
		source.byID[rec.MessageID] = rec
		ids[i] = rec.MessageID
	}

	repo := newFakeRepo()
	index := newFakeIndex()
	o := NewOrchestrator(repo, index, nil, Tuning{BatchSize: 4, PageSize: 25})

	handleCh := make(chan *RunHandle, 1)
	repo.onUpsert = func(batch int) {
		if batch == 1 {
			h := <-handleCh
			h.Cancel()
		}
	}

	handle, err := o.Start(StartRequest{
		Source:     source,
		Mode:       domain.ModeExplicitSelection,
		MessageIDs: ids,
	})
	require.NoError(t, err)
	handleCh <- handle

	result := waitDone(t, handle)
	assert.ErrorIs(t, result.Err, domain.ErrCancelled)
	assert.Equal(t, domain.PhaseCancelled, handle.Progress().Phase)

	// The first batch completed before the cancel took effect; nothing else
	// was written.
	assert.Equal(t, 4, result.Stored)
	assert.Len(t, repo.messages, 4)
	assert.Equal(t, 4, index.count())
}

func TestPauseThenResume(t *testing.T) {
	source := &fakeSource{
		folders:  []*domain.Folder{{ID: "inbox", DisplayName: "Inbox", TotalItemCount: 10}},
		byFolder: map[string][]*domain.MessageRecord{"inbox": makeRecords("inbox", 10)},
	}

	o := NewOrchestrator(newFakeRepo(), newFakeIndex(), nil, Tuning{BatchSize: 20, PageSize: 5})

	handleCh := make(chan *RunHandle, 1)
	source.onPage = func(folderID, pageToken string) {
		if pageToken == "" {
			h := <-handleCh
			h.RequestPause()
		}
	}

	handle, err := o.Start(StartRequest{
		Source:    source,
		Mode:      domain.ModeFolderScoped,
		FolderIDs: []string{"inbox"},
		FolderCap: 10,
	})
	require.NoError(t, err)
	handleCh <- handle

	// The run suspends at the gate before the second page.
	require.Eventually(t, handle.Paused, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, handle.Progress().Collected)

	require.NoError(t, handle.Resume())

	result := waitDone(t, handle)
	require.NoError(t, result.Err)
	assert.Equal(t, 10, result.Stored)
	assert.False(t, handle.Paused())
}

func TestPauseThenCancel(t *testing.T) {
	source := &fakeSource{
		folders:  []*domain.Folder{{ID: "inbox", DisplayName: "Inbox", TotalItemCount: 10}},
		byFolder: map[string][]*domain.MessageRecord{"inbox": makeRecords("inbox", 10)},
	}

	repo := newFakeRepo()
	o := NewOrchestrator(repo, newFakeIndex(), nil, Tuning{BatchSize: 20, PageSize: 5})

	handleCh := make(chan *RunHandle, 1)
	source.onPage = func(folderID, pageToken string) {
		if pageToken == "" {
			h := <-handleCh
			h.RequestPause()
		}
	}

	handle, err := o.Start(StartRequest{
		Source:    source,
		Mode:      domain.ModeFolderScoped,
		FolderIDs: []string{"inbox"},
		FolderCap: 10,
	})
	require.NoError(t, err)
	handleCh <- handle

	require.Eventually(t, handle.Paused, 2*time.Second, 5*time.Millisecond)
	handle.Cancel()

	result := waitDone(t, handle)
	assert.ErrorIs(t, result.Err, domain.ErrCancelled)
	assert.Equal(t, domain.PhaseCancelled, handle.Progress().Phase)
	// Cancelled during collection: nothing was committed.
	assert.Equal(t, 0, result.Stored)
	assert.Equal(t, 0, repo.batches)
}

func TestBatchFailureAbortsRun(t *testing.T) {
	records := makeRecords("inbox", 10)
	source := &fakeSource{byID: map[string]*domain.MessageRecord{}}
	ids := make([]string, len(records))
	for i, rec := range records {
		source.byID[rec.MessageID] = rec
		ids[i] = rec.MessageID
	}

	repo := newFakeRepo()
	repo.failAt = 2
	index := newFakeIndex()
	o := NewOrchestrator(repo, index, nil, Tuning{BatchSize: 4, PageSize: 25})

	handle, err := o.Start(StartRequest{
		Source:     source,
		Mode:       domain.ModeExplicitSelection,
		MessageIDs: ids,
	})
	require.NoError(t, err)

	result := waitDone(t, handle)
	assert.ErrorIs(t, result.Err, domain.ErrStorageUnavailable)

	progress := handle.Progress()
	assert.Equal(t, domain.PhaseFailed, progress.Phase)
	assert.NotEmpty(t, progress.Error)

	// The first batch survives; the failed one does not count.
	assert.Equal(t, 4, result.Stored)
	assert.Len(t, repo.messages, 4)
	assert.Equal(t, 4, index.count())
}

func TestIndexFailureAbortsRun(t *testing.T) {
	records := makeRecords("inbox", 6)
	source := &fakeSource{byID: map[string]*domain.MessageRecord{}}
	ids := make([]string, len(records))
	for i, rec := range records {
		source.byID[rec.MessageID] = rec
		ids[i] = rec.MessageID
	}

	index := newFakeIndex()
	index.failAt = 1
	o := NewOrchestrator(newFakeRepo(), index, nil, Tuning{BatchSize: 10, PageSize: 25})

	handle, err := o.Start(StartRequest{
		Source:     source,
		Mode:       domain.ModeExplicitSelection,
		MessageIDs: ids,
	})
	require.NoError(t, err)

	result := waitDone(t, handle)
	assert.ErrorIs(t, result.Err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, 0, result.Stored)
}

func TestProgressCountersAreMonotone(t *testing.T) {
	source := &fakeSource{
		folders:  []*domain.Folder{{ID: "inbox", DisplayName: "Inbox", TotalItemCount: 20}},
		byFolder: map[string][]*domain.MessageRecord{"inbox": makeRecords("inbox", 20)},
	}

	o := NewOrchestrator(newFakeRepo(), newFakeIndex(), nil, Tuning{BatchSize: 5, PageSize: 4})

	var mu sync.Mutex
	var snapshots []domain.Progress

	handleCh := make(chan *RunHandle, 1)
	var tracked *RunHandle
	source.onPage = func(string, string) {
		if tracked == nil {
			tracked = <-handleCh
		}
		mu.Lock()
		snapshots = append(snapshots, tracked.Progress())
		mu.Unlock()
	}

	handle, err := o.Start(StartRequest{
		Source:    source,
		Mode:      domain.ModeFolderScoped,
		FolderIDs: []string{"inbox"},
		FolderCap: 20,
	})
	require.NoError(t, err)
	handleCh <- handle
	result := waitDone(t, handle)
	require.NoError(t, result.Err)

	mu.Lock()
	defer mu.Unlock()
	prev := domain.Progress{}
	for _, snap := range snapshots {
		assert.GreaterOrEqual(t, snap.Collected, prev.Collected)
		assert.GreaterOrEqual(t, snap.Stored, prev.Stored)
		prev = snap
	}
}

func TestUnknownModeRejected(t *testing.T) {
	o := NewOrchestrator(newFakeRepo(), newFakeIndex(), nil, Tuning{})
	_, err := o.Start(StartRequest{Source: &fakeSource{}, Mode: "bulk"})
	assert.Error(t, err)
}
