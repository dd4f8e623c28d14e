package notification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceToken is a push-notification device registration.
type DeviceToken struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"index;not null"`
	Token      string    `json:"-" gorm:"uniqueIndex;not null"`
	DeviceInfo string    `json:"device_info"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DeviceTokenRepository defines the interface for device token operations
type DeviceTokenRepository interface {
	SaveToken(userID, token, deviceInfo string) error
	GetTokensByUserID(userID string) ([]DeviceToken, error)
	DeleteToken(token string) error
	DeleteTokensByUserID(userID string) error
}

type deviceTokenRepository struct {
	db *gorm.DB
}

func NewDeviceTokenRepository(db *gorm.DB) DeviceTokenRepository {
	return &deviceTokenRepository{db: db}
}

// SaveToken saves or updates a device token (atomic upsert on token).
// A token that moves between accounts is reassigned, not duplicated.
func (r *deviceTokenRepository) SaveToken(userID, token, deviceInfo string) error {
	row := &DeviceToken{
		ID:         uuid.New().String(),
		UserID:     userID,
		Token:      token,
		DeviceInfo: deviceInfo,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "device_info", "updated_at"}),
	}).Create(row).Error
}

func (r *deviceTokenRepository) GetTokensByUserID(userID string) ([]DeviceToken, error) {
	var tokens []DeviceToken
	err := r.db.Where("user_id = ?", userID).Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *deviceTokenRepository) DeleteToken(token string) error {
	return r.db.Where("token = ?", token).Delete(&DeviceToken{}).Error
}

func (r *deviceTokenRepository) DeleteTokensByUserID(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&DeviceToken{}).Error
}
