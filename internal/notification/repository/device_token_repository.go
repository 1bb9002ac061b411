// Package repository stores device tokens, adapted from the teacher's
// internal/auth/repository/fcm_repository.go (same atomic
// on-conflict-upsert-by-token shape) into the notification package.
package repository

import (
	"time"

	notifdomain "github.com/syncorch/syncd/internal/notification/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeviceTokenRepository struct {
	db *gorm.DB
}

func NewDeviceTokenRepository(db *gorm.DB) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db}
}

// Register upserts a device token by its unique token value, the way
// the teacher's fcmTokenRepository.SaveToken does.
func (r *DeviceTokenRepository) Register(userID, token, deviceInfo string) error {
	record := &notifdomain.DeviceToken{
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
	}).Create(record).Error
}

func (r *DeviceTokenRepository) TokensForUser(userID string) ([]notifdomain.DeviceToken, error) {
	var tokens []notifdomain.DeviceToken
	err := r.db.Where("user_id = ?", userID).Find(&tokens).Error
	return tokens, err
}

func (r *DeviceTokenRepository) Revoke(token string) error {
	return r.db.Where("token = ?", token).Delete(&notifdomain.DeviceToken{}).Error
}
