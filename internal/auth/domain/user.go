package domain

import "time"

// User holds the account record plus the provider credentials the
// ingestion engine needs. Session issuance happens elsewhere; this
// service only validates bearer tokens and reads credentials.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	Name         string    `json:"name"`
	Provider     string    `json:"provider"` // "google"
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasCredentials reports whether the account is connected to its
// mail provider. A disconnected account is an expected state, not
// an error.
func (u *User) HasCredentials() bool {
	return u.AccessToken != ""
}
