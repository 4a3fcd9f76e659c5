package repository

import (
	"time"

	"mailvault-backend/internal/ingest/domain"
	"mailvault-backend/pkg/crypto"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Status reports the overall state of the local store.
type Status struct {
	IndexedCount int64      `json:"indexed_count"`
	LastUpdated  *time.Time `json:"last_updated"`
}

// MessageRepository defines the interface for the local durable message store
type MessageRepository interface {
	// UpsertMessages writes a batch of records attributed to runID in a single
	// transaction. Existing message ids are overwritten and reattributed to
	// runID. The run row is created with the first committed batch. Records
	// without a message id are rejected individually and not counted.
	UpsertMessages(runID string, run *domain.IngestionRun, records []*domain.MessageRecord) (int, error)
	// GetMessagesByIDs returns the live records for the given ids, decrypted.
	// Missing ids are simply absent from the result.
	GetMessagesByIDs(ids []string) ([]*domain.MessageRecord, error)
	// ListHeaders returns every stored record without its body, for header
	// search over subjects and senders.
	ListHeaders() ([]*domain.MessageRecord, error)
	// Status returns the live message count and most recent write time.
	Status() (*Status, error)
	// ListRuns returns runs newest-first with live message counts computed at
	// read time.
	ListRuns(limit int) ([]*domain.IngestionRun, error)
	// ClearRun deletes all messages currently attributed to runID plus the run
	// row, returning the deleted count and message ids so the caller can purge
	// the vector index. An unknown runID deletes nothing and is not an error.
	ClearRun(runID string) (int64, []string, error)
	// ClearAll deletes every message and run, returning the deleted count.
	ClearAll() (int64, error)
}

// messageRepository implements MessageRepository on GORM over SQLite
type messageRepository struct {
	db     *gorm.DB
	cipher *crypto.Cipher
}

// NewMessageRepository creates a new instance of messageRepository. cipher may
// be nil, in which case bodies are stored in plaintext.
func NewMessageRepository(db *gorm.DB, cipher *crypto.Cipher) MessageRepository {
	return &messageRepository{
		db:     db,
		cipher: cipher,
	}
}

func (r *messageRepository) UpsertMessages(runID string, run *domain.IngestionRun, records []*domain.MessageRecord) (int, error) {
	valid := make([]*domain.MessageRecord, 0, len(records))
	for _, rec := range records {
		if rec.MessageID == "" {
			// Record-level rejection; a synthetic key would break dedup.
			continue
		}
		valid = append(valid, rec)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	now := time.Now()
	rows := make([]domain.MessageRecord, len(valid))
	for i, rec := range valid {
		row := *rec
		row.RunID = runID
		row.UpdatedAt = now
		if r.cipher != nil {
			encrypted, err := r.cipher.EncryptString(row.Body)
			if err != nil {
				return 0, domain.WrapError(domain.ErrStorageUnavailable, "Could not encrypt message body", err)
			}
			row.Body = encrypted
		}
		rows[i] = row
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		runRow := domain.IngestionRun{
			RunID:     runID,
			Label:     run.Label,
			Mode:      run.Mode,
			CreatedAt: run.CreatedAt,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&runRow).Error; err != nil {
			return err
		}

		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "message_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"folder_id", "subject", "sender", "received_at", "weblink", "body", "run_id", "updated_at",
			}),
		}).Create(&rows).Error
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrStorageUnavailable, "Could not write message batch", err)
	}

	return len(valid), nil
}

func (r *messageRepository) GetMessagesByIDs(ids []string) ([]*domain.MessageRecord, error) {
	if len(ids) == 0 {
		return []*domain.MessageRecord{}, nil
	}

	var rows []*domain.MessageRecord
	if err := r.db.Where("message_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "Could not read messages", err)
	}

	if r.cipher != nil {
		for _, row := range rows {
			decrypted, err := r.cipher.DecryptString(row.Body)
			if err != nil {
				return nil, domain.WrapError(domain.ErrStorageUnavailable, "Could not decrypt message body", err)
			}
			row.Body = decrypted
		}
	}

	return rows, nil
}

func (r *messageRepository) ListHeaders() ([]*domain.MessageRecord, error) {
	var rows []*domain.MessageRecord
	err := r.db.
		Select("message_id", "folder_id", "subject", "sender", "received_at", "weblink", "run_id").
		Order("received_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "Could not list message headers", err)
	}
	return rows, nil
}

func (r *messageRepository) Status() (*Status, error) {
	var count int64
	if err := r.db.Model(&domain.MessageRecord{}).Count(&count).Error; err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "Could not read store status", err)
	}

	status := &Status{IndexedCount: count}
	if count > 0 {
		var last time.Time
		err := r.db.Model(&domain.MessageRecord{}).Select("MAX(updated_at)").Scan(&last).Error
		if err != nil {
			return nil, domain.WrapError(domain.ErrStorageUnavailable, "Could not read store status", err)
		}
		status.LastUpdated = &last
	}
	return status, nil
}

func (r *messageRepository) ListRuns(limit int) ([]*domain.IngestionRun, error) {
	if limit <= 0 {
		limit = 20
	}

	var runs []*domain.IngestionRun
	if err := r.db.Order("created_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "Could not list runs", err)
	}

	// Live counts, computed at read time: messages may have been reattributed
	// or deleted since the run completed.
	type runCount struct {
		RunID string
		N     int64
	}
	var counts []runCount
	err := r.db.Model(&domain.MessageRecord{}).
		Select("run_id AS run_id, COUNT(*) AS n").
		Group("run_id").
		Scan(&counts).Error
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "Could not count run messages", err)
	}

	byRun := make(map[string]int64, len(counts))
	for _, c := range counts {
		byRun[c.RunID] = c.N
	}
	for _, run := range runs {
		run.MessageCount = byRun[run.RunID]
	}

	return runs, nil
}

func (r *messageRepository) ClearRun(runID string) (int64, []string, error) {
	var ids []string
	var deleted int64

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.MessageRecord{}).
			Where("run_id = ?", runID).
			Pluck("message_id", &ids).Error; err != nil {
			return err
		}

		res := tx.Where("run_id = ?", runID).Delete(&domain.MessageRecord{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected

		return tx.Where("run_id = ?", runID).Delete(&domain.IngestionRun{}).Error
	})
	if err != nil {
		return 0, nil, domain.WrapError(domain.ErrStorageUnavailable, "Could not clear run", err)
	}

	return deleted, ids, nil
}

func (r *messageRepository) ClearAll() (int64, error) {
	var deleted int64

	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.MessageRecord{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected

		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.IngestionRun{}).Error
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrStorageUnavailable, "Could not clear the index", err)
	}

	return deleted, nil
}
