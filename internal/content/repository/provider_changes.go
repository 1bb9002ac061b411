package repository

import (
	"time"

	contentdomain "github.com/syncorch/syncd/internal/content/domain"
	"github.com/syncorch/syncd/pkg/errs"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProviderChangesRepository struct {
	db *gorm.DB
}

func NewProviderChangesRepository(db *gorm.DB) *ProviderChangesRepository {
	return &ProviderChangesRepository{db: db}
}

// Log appends one audit row. Append-only: there is no update or delete
// path, per spec §4.4.
func (r *ProviderChangesRepository) Log(entry contentdomain.ProviderChange) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ChangeDate.IsZero() {
		entry.ChangeDate = time.Now()
	}
	entry.CreatedAt = time.Now()
	if err := r.db.Create(&entry).Error; err != nil {
		return errs.New(errs.StorageError, "failed to log provider change", err)
	}
	return nil
}

func (r *ProviderChangesRepository) ListByUser(userID string, limit int) ([]contentdomain.ProviderChange, error) {
	var rows []contentdomain.ProviderChange
	q := r.db.Where("user_id = ?", userID).Order("change_date desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, errs.New(errs.StorageError, "failed to list provider changes", err)
	}
	return rows, nil
}
