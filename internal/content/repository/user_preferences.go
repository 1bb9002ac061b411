package repository

import (
	contentdomain "github.com/syncorch/syncd/internal/content/domain"
	"github.com/syncorch/syncd/pkg/errs"

	"gorm.io/gorm"
)

type UserPreferencesRepository struct {
	db *gorm.DB
}

func NewUserPreferencesRepository(db *gorm.DB) *UserPreferencesRepository {
	return &UserPreferencesRepository{db: db}
}

// GetRules returns the user's numbered classification rules, or an
// empty slice if the user has not configured any — the Classifier (C7)
// treats that as "no optional user rules section" in its prompt.
func (r *UserPreferencesRepository) GetRules(userID string) ([]string, error) {
	var prefs contentdomain.UserPreferences
	err := r.db.Where("user_id = ?", userID).First(&prefs).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.StorageError, "failed to load user preferences", err)
	}
	return prefs.Rules, nil
}
