package repository

import (
	ingestdomain "mailstream-backend/internal/ingest/domain"
)

// SyncCursorRepository persists per-(user, source) sync positions.
type SyncCursorRepository interface {
	// Get returns the cursor row, or nil if the pair has never synced.
	Get(userID, sourceName string) (*ingestdomain.SyncCursor, error)

	// Save creates or updates the cursor row. The (user_id, source_name)
	// unique constraint makes concurrent first-run saves collapse into
	// one row instead of two.
	Save(cursor *ingestdomain.SyncCursor) error
}
