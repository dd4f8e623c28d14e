package repository

import (
	"errors"
	"time"

	ingestdomain "mailstream-backend/internal/ingest/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// syncCursorRepository implements SyncCursorRepository interface
type syncCursorRepository struct {
	db *gorm.DB
}

// NewSyncCursorRepository creates a new instance of syncCursorRepository
func NewSyncCursorRepository(db *gorm.DB) SyncCursorRepository {
	return &syncCursorRepository{
		db: db,
	}
}

func (r *syncCursorRepository) Get(userID, sourceName string) (*ingestdomain.SyncCursor, error) {
	var cursor ingestdomain.SyncCursor
	err := r.db.Where("user_id = ? AND source_name = ?", userID, sourceName).First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cursor, nil
}

func (r *syncCursorRepository) Save(cursor *ingestdomain.SyncCursor) error {
	now := time.Now()
	if cursor.ID == "" {
		cursor.ID = uuid.New().String()
		cursor.CreatedAt = now
	}
	cursor.UpdatedAt = now

	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "source_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cursor_token", "sync_enabled", "first_sync_completed",
			"last_sync_at", "total_synced", "error_count", "last_error",
			"updated_at",
		}),
	}).Create(cursor).Error
}
