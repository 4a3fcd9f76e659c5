package domain

import (
	"fmt"
	"time"
)

// Ingestion modes
const (
	ModeFolderScoped      = "folder"
	ModeExplicitSelection = "selection"
)

// IngestionRun is one bounded ingestion execution. The stored row is immutable
// once the run completes; MessageCount is computed at read time because
// messages may be reattributed to later runs or deleted.
type IngestionRun struct {
	RunID        string    `json:"run_id" gorm:"primaryKey;column:run_id"`
	Label        string    `json:"label"`
	Mode         string    `json:"mode"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int64     `json:"message_count" gorm:"-"`
}

// TableName specifies the table name for GORM
func (IngestionRun) TableName() string {
	return "ingestion_runs"
}

// RunLabel builds the human-readable label attached to a run.
func RunLabel(mode string, at time.Time) string {
	kind := "Folder import"
	if mode == ModeExplicitSelection {
		kind = "Selected messages"
	}
	return fmt.Sprintf("%s - %s", kind, at.Format("2006-01-02 15:04"))
}
