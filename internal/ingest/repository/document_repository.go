package repository

import (
	"errors"
	"time"

	ingestdomain "mailstream-backend/internal/ingest/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// documentRepository implements DocumentRepository interface
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new instance of documentRepository
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{
		db: db,
	}
}

func (r *documentRepository) Upsert(doc *ingestdomain.IngestedDocument) error {
	now := time.Now()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "source_type"}, {Name: "source_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"content", "embedding", "metadata", "updated_at",
		}),
	}).Create(doc).Error
}

func (r *documentRepository) Exists(userID, sourceType, sourceID string) (bool, bool, error) {
	var doc ingestdomain.IngestedDocument
	err := r.db.Select("id", "embedding").
		Where("user_id = ? AND source_type = ? AND source_id = ?", userID, sourceType, sourceID).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, len(doc.Embedding) > 0, nil
}
