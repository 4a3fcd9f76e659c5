package usecase

import (
	"context"

	"mailvault-backend/internal/ingest/domain"
)

// VectorIndex is the embedding/index engine consumed by ingestion. Implemented
// by pkg/chroma.Client.
type VectorIndex interface {
	// UpsertMessages embeds and upserts a batch, keyed by message id.
	UpsertMessages(ctx context.Context, records []*domain.MessageRecord) error
	// Delete removes entries for the given ids; absent ids are ignored.
	Delete(ctx context.Context, messageIDs []string) error
	// DeleteAll clears the entire index.
	DeleteAll(ctx context.Context) error
	// Count returns the number of index entries.
	Count(ctx context.Context) (int, error)
}
