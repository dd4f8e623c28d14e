package repository

import (
	ingestdomain "mailstream-backend/internal/ingest/domain"
)

// DocumentRepository persists ingested documents with idempotent-upsert
// semantics on the (user_id, source_type, source_id) natural key.
type DocumentRepository interface {
	// Upsert inserts the document or, if the natural key exists, updates
	// content, embedding and metadata in place. Safe to repeat.
	Upsert(doc *ingestdomain.IngestedDocument) error

	// Exists reports whether the remote item has already been ingested,
	// and whether a vector was stored with it.
	Exists(userID, sourceType, sourceID string) (exists bool, hasEmbedding bool, err error)
}
