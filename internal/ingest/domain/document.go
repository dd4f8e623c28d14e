package domain

import (
	"time"

	"gorm.io/datatypes"
)

// IngestedDocument is the persisted, embedded form of a remote item.
// (user_id, source_type, source_id) is the natural idempotency key:
// re-ingesting the same remote id updates the existing row instead of
// creating a duplicate.
type IngestedDocument struct {
	ID         string            `json:"id" gorm:"primaryKey"`
	UserID     string            `json:"user_id" gorm:"uniqueIndex:idx_user_source_item;not null"`
	SourceType string            `json:"source_type" gorm:"uniqueIndex:idx_user_source_item;not null"`
	SourceID   string            `json:"source_id" gorm:"uniqueIndex:idx_user_source_item;not null"`
	Content    string            `json:"content" gorm:"type:text"`
	Embedding  datatypes.JSON    `json:"-"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Document is the classifier output: canonical text plus structured
// metadata, not yet embedded or persisted.
type Document struct {
	Content  string
	Category string
	IsUnread bool
	ThreadID string
	Subject  string
	From     string
	Metadata map[string]interface{}
}
