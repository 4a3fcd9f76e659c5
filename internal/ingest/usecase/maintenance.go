package usecase

import (
	"context"
	"log"

	"mailvault-backend/internal/ingest/domain"
	"mailvault-backend/internal/ingest/repository"
)

// Maintenance bundles the store and index operations that act on data at
// rest: run listing, scoped and full deletion, and status.
type Maintenance struct {
	repo  repository.MessageRepository
	index VectorIndex
}

func NewMaintenance(repo repository.MessageRepository, index VectorIndex) *Maintenance {
	return &Maintenance{
		repo:  repo,
		index: index,
	}
}

// ListRuns returns ingestion runs newest-first with live message counts.
func (m *Maintenance) ListRuns(limit int) ([]*domain.IngestionRun, error) {
	return m.repo.ListRuns(limit)
}

// IndexStatus returns the store's live message count and last write time
// alongside the vector index's own entry count. The two counts agree under
// normal operation; a mismatch means the index needs a rebuild.
func (m *Maintenance) IndexStatus(ctx context.Context) (*repository.Status, int, error) {
	status, err := m.repo.Status()
	if err != nil {
		return nil, 0, err
	}
	vectors, err := m.index.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return status, vectors, nil
}

// ClearRun deletes every message currently attributed to runID from both the
// store and the index, plus the run record. Clearing an unknown run deletes
// nothing and is not an error.
func (m *Maintenance) ClearRun(ctx context.Context, runID string) (int64, error) {
	deleted, ids, err := m.repo.ClearRun(runID)
	if err != nil {
		return 0, err
	}

	// The index delete is part of the operation: it must succeed before the
	// clear counts as complete. Queries in the window between the two writes
	// drop hits whose store rows are gone.
	if err := m.index.Delete(ctx, ids); err != nil {
		return deleted, err
	}

	log.Printf("[Ingest] Cleared run %s: %d messages deleted", runID, deleted)
	return deleted, nil
}

// ClearAll wipes every message, run and index entry.
func (m *Maintenance) ClearAll(ctx context.Context) (int64, error) {
	deleted, err := m.repo.ClearAll()
	if err != nil {
		return 0, err
	}

	if err := m.index.DeleteAll(ctx); err != nil {
		return deleted, err
	}

	log.Printf("[Ingest] Cleared all: %d messages deleted", deleted)
	return deleted, nil
}
