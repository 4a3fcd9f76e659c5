package dto

import (
	"time"

	"mailvault-backend/internal/ingest/domain"
)

// StartRunRequest starts an ingestion run. Mode selects the shape of the run:
// "selection" ingests message_ids verbatim, "folder" ingests the most recent
// folder_cap messages of each folder in folder_ids.
type StartRunRequest struct {
	Mode       string   `json:"mode" binding:"required"`
	MessageIDs []string `json:"message_ids"`
	FolderIDs  []string `json:"folder_ids"`
	FolderCap  int      `json:"folder_cap"`
	BatchSize  int      `json:"batch_size"`
	PageSize   int      `json:"page_size"`
}

// RunSnapshot is the live view of a run returned by the start and progress
// endpoints.
type RunSnapshot struct {
	RunID    string          `json:"run_id"`
	Mode     string          `json:"mode"`
	Paused   bool            `json:"paused"`
	Progress domain.Progress `json:"progress"`
	Label    string          `json:"label,omitempty"`
	Stored   int             `json:"stored,omitempty"`
}

type FoldersResponse struct {
	Folders []*domain.Folder `json:"folders"`
}

type RunsResponse struct {
	Runs []*domain.IngestionRun `json:"runs"`
}

type DeleteResponse struct {
	DeletedCount int64 `json:"deleted_count"`
}

type LinkResponse struct {
	MessageID string `json:"message_id"`
	WebLink   string `json:"weblink"`
}

type IndexStatusResponse struct {
	IndexedCount int64      `json:"indexed_count"`
	VectorCount  int        `json:"vector_count"`
	LastUpdated  *time.Time `json:"last_updated"`
}
