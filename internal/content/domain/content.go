// Package domain defines the Content Store's (C4) relational shapes:
// Email, SyncStatus, ProviderChange, and UserPreferences. Grounded on
// the teacher's GORM model idiom (internal/email/domain/*.go — string
// primary keys, gorm tag-driven indexes) and on
// _examples/original_source/backend/src/services/db/provider_changes.py
// and .../model/user_preferences.py for field shape.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a []string stored as a JSON column, mirroring the
// teacher's preference for explicit custom GORM types over a
// pg-specific array type (keeps the schema portable across Postgres
// configurations without the pq array extension).
type StringArray []string

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal([]string(a))
}

func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return errors.New("StringArray: unsupported Scan type")
		}
		bytes = []byte(s)
	}
	return json.Unmarshal(bytes, a)
}

// StringMap is a free-form map[string]interface{} stored as a JSON
// column, the same custom-GORM-type idiom as StringArray, used for
// SyncStatus's spec §3 free-form `metadata` field.
type StringMap map[string]interface{}

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(map[string]interface{}(m))
}

func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return errors.New("StringMap: unsupported Scan type")
		}
		bytes = []byte(s)
	}
	return json.Unmarshal(bytes, m)
}

// Email is the normalized, persisted form from spec §4.1.
type Email struct {
	ID               string      `json:"id" gorm:"primaryKey"`
	UserID           string      `json:"user_id" gorm:"index:idx_email_identity,unique;not null"`
	EmailID          string      `json:"email_id" gorm:"index:idx_email_identity,unique;not null"`
	SourceType       string      `json:"source_type" gorm:"index:idx_email_identity,unique;not null"`
	ConversationID   string      `json:"conversation_id" gorm:"index"`
	Sender           string      `json:"sender"`
	Recipients       StringArray `json:"recipients" gorm:"type:jsonb"`
	Subject          *string     `json:"subject"`
	BodyText         string      `json:"body_text"`
	SentDate         time.Time   `json:"sent_date"`
	Folder           string      `json:"folder"`
	IsClassified     bool        `json:"is_classified" gorm:"index"`
	ClassifiedAction string      `json:"classified_action"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// SyncStatus tracks one (user, source) sync run's lifecycle, strictly
// pending → in_progress → {completed | failed} per spec §5, plus the
// item counters and free-form metadata spec §3 requires so a partial
// failure can be recorded on a `completed` row instead of inventing a
// status value outside the four-member enum.
type SyncStatus struct {
	ID                 string      `json:"id" gorm:"primaryKey"`
	UserID             string      `json:"user_id" gorm:"index:idx_sync_status_identity,unique;not null"`
	Source             string      `json:"source" gorm:"index:idx_sync_status_identity,unique;not null"`
	Status             string      `json:"status"` // pending | in_progress | completed | failed
	Progress           float64     `json:"progress"`
	ItemsProcessed     int         `json:"items_processed"`
	ItemsSucceeded     int         `json:"items_succeeded"`
	ItemsFailed        int         `json:"items_failed"`
	TotalDocuments     int         `json:"total_documents"`
	Metadata           StringMap   `json:"metadata" gorm:"type:jsonb"`
	ErrorDetails       string      `json:"error_details"`
	LastSuccessfulSync *time.Time  `json:"last_successful_sync"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ProviderChange is an append-only audit row for every provider-side
// side effect the Action Executor (C8) performs.
type ProviderChange struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	ChangeDate time.Time `json:"change_date"`
	Provider   string    `json:"provider" gorm:"index"`
	UserID     string    `json:"user_id" gorm:"index"`
	ChangeType string    `json:"change_type"` // add | modify | remove | create
	ItemID     string    `json:"item_id"`
	Details    string    `json:"details"` // JSON-encoded free-form detail blob
	CreatedAt  time.Time `json:"created_at"`
}

// UserPreferences holds the optional numbered user rules the Classifier
// (C7) folds into its prompt, per spec §4.7.
type UserPreferences struct {
	ID        string      `json:"id" gorm:"primaryKey"`
	UserID    string      `json:"user_id" gorm:"uniqueIndex;not null"`
	Rules     StringArray `json:"rules" gorm:"type:jsonb"` // `when email contains "<keyword>", perform "<action>" [to <recipient>]`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
