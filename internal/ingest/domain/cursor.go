package domain

import "time"

// SourceGmail is the only change-log source currently wired.
const SourceGmail = "gmail"

// SyncCursor tracks how far incremental ingestion has progressed for one
// (user, source) pair. CursorToken is an opaque provider marker; nil means
// the account has never synced and the next run must bootstrap. The token
// is only written after the corresponding batch has been durably persisted.
type SyncCursor struct {
	ID                 string     `json:"id" gorm:"primaryKey"`
	UserID             string     `json:"user_id" gorm:"uniqueIndex:idx_user_source;not null"`
	SourceName         string     `json:"source_name" gorm:"uniqueIndex:idx_user_source;not null"`
	CursorToken        *string    `json:"cursor_token"`
	SyncEnabled        bool       `json:"sync_enabled" gorm:"default:true"`
	FirstSyncCompleted bool       `json:"first_sync_completed" gorm:"default:false"`
	LastSyncAt         *time.Time `json:"last_sync_at"`
	TotalSynced        int        `json:"total_synced" gorm:"default:0"`
	ErrorCount         int        `json:"error_count" gorm:"default:0"`
	LastError          *string    `json:"last_error"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Sync run modes reported back to the caller.
const (
	SyncTypeInitial     = "initial"
	SyncTypeIncremental = "incremental"
)

// IngestionRunResult summarizes a single sync run. It is returned to the
// caller and folded into the SyncCursor counters, never persisted itself.
type IngestionRunResult struct {
	Processed   int        `json:"processed"`
	Skipped     int        `json:"skipped"`
	SyncType    string     `json:"sync_type"`
	Error       *string    `json:"error,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
	IsFirstSync bool       `json:"is_first_sync"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
}

// SyncStatus is the read model for the status endpoint.
type SyncStatus struct {
	HasCredentials     bool       `json:"has_credentials"`
	SyncEnabled        bool       `json:"sync_enabled"`
	FirstSyncCompleted bool       `json:"first_sync_completed"`
	LastSyncAt         *time.Time `json:"last_sync_at"`
	TotalSynced        int        `json:"total_synced"`
	ErrorCount         int        `json:"error_count"`
	LastError          *string    `json:"last_error"`
}
