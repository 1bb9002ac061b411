package repository

import (
	"time"

	contentdomain "github.com/syncorch/syncd/internal/content/domain"
	"github.com/syncorch/syncd/pkg/errs"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SyncStatusRepository struct {
	db *gorm.DB
}

func NewSyncStatusRepository(db *gorm.DB) *SyncStatusRepository {
	return &SyncStatusRepository{db: db}
}

// SyncCounters carries the per-run item counts and free-form metadata
// spec §3 requires on a SyncStatus row, so a partial-failure run can be
// recorded as `status=completed, items_failed>0` instead of inventing a
// status value outside the four-member enum.
type SyncCounters struct {
	ItemsProcessed int
	ItemsSucceeded int
	ItemsFailed    int
	TotalDocuments int
	Metadata       map[string]interface{}
}

// Upsert establishes progress % and item counters for a (user, source)
// run, creating the row on first use. Status transitions are the
// caller's responsibility (pending → in_progress → {completed |
// failed}, never regressing) — this repository persists whatever
// status it is given.
func (r *SyncStatusRepository) Upsert(userID, source, status string, progress float64, errorDetails string, counters SyncCounters) error {
	var existing contentdomain.SyncStatus
	err := r.db.Where("user_id = ? AND source = ?", userID, source).First(&existing).Error

	now := time.Now()
	if err == gorm.ErrRecordNotFound {
		row := contentdomain.SyncStatus{
			ID: uuid.New().String(), UserID: userID, Source: source,
			Status: status, Progress: progress, ErrorDetails: errorDetails,
			ItemsProcessed: counters.ItemsProcessed, ItemsSucceeded: counters.ItemsSucceeded,
			ItemsFailed: counters.ItemsFailed, TotalDocuments: counters.TotalDocuments,
			Metadata:  contentdomain.StringMap(counters.Metadata),
			CreatedAt: now, UpdatedAt: now,
		}
		if status == "completed" {
			row.LastSuccessfulSync = &now
		}
		if createErr := r.db.Create(&row).Error; createErr != nil {
			return errs.New(errs.StorageError, "failed to create sync status", createErr)
		}
		return nil
	}
	if err != nil {
		return errs.New(errs.StorageError, "failed to look up sync status", err)
	}

	existing.Status = status
	existing.Progress = progress
	existing.ErrorDetails = errorDetails
	existing.ItemsProcessed = counters.ItemsProcessed
	existing.ItemsSucceeded = counters.ItemsSucceeded
	existing.ItemsFailed = counters.ItemsFailed
	existing.TotalDocuments = counters.TotalDocuments
	existing.Metadata = contentdomain.StringMap(counters.Metadata)
	existing.UpdatedAt = now
	if status == "completed" {
		existing.LastSuccessfulSync = &now
	}
	if saveErr := r.db.Save(&existing).Error; saveErr != nil {
		return errs.New(errs.StorageError, "failed to update sync status", saveErr)
	}
	return nil
}

func (r *SyncStatusRepository) Get(userID, source string) (contentdomain.SyncStatus, error) {
	var status contentdomain.SyncStatus
	err := r.db.Where("user_id = ? AND source = ?", userID, source).First(&status).Error
	if err == gorm.ErrRecordNotFound {
		return contentdomain.SyncStatus{UserID: userID, Source: source, Status: "pending"}, nil
	}
	if err != nil {
		return contentdomain.SyncStatus{}, errs.New(errs.StorageError, "failed to fetch sync status", err)
	}
	return status, nil
}

func (r *SyncStatusRepository) ListByUser(userID string) ([]contentdomain.SyncStatus, error) {
	var rows []contentdomain.SyncStatus
	if err := r.db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, errs.New(errs.StorageError, "failed to list sync statuses", err)
	}
	return rows, nil
}
