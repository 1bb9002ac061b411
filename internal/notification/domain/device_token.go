// Package domain defines the device-token shape for push notifications.
// Renamed from the teacher's internal/auth/domain.FCMToken — these
// tokens register a browser/device for a userID already known to the
// Token Store, not an authenticated account, so they no longer live
// under "auth".
package domain

import "time"

// DeviceToken is a Firebase Cloud Messaging registration for one
// browser/device belonging to userID.
type DeviceToken struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"index;not null"`
	Token      string    `json:"-" gorm:"uniqueIndex;not null"`
	DeviceInfo string    `json:"device_info"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
