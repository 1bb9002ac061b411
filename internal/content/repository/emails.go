// Package repository implements the Content Store (C4): typed GORM
// repositories, each write its own transaction with no cross-repository
// transaction, grounded on the teacher's
// internal/email/repository/email_sync_history_repository.go idiom.
package repository

import (
	"sort"
	"time"

	contentdomain "github.com/syncorch/syncd/internal/content/domain"
	"github.com/syncorch/syncd/pkg/errs"
	"github.com/syncorch/syncd/pkg/fuzzy"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EmailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) *EmailRepository {
	return &EmailRepository{db: db}
}

// Save is idempotent on (user_id, email_id, source_type) via upsert.
func (r *EmailRepository) Save(email contentdomain.Email) error {
	var existing contentdomain.Email
	err := r.db.Where("user_id = ? AND email_id = ? AND source_type = ?",
		email.UserID, email.EmailID, email.SourceType).First(&existing).Error

	now := time.Now()
	if err == gorm.ErrRecordNotFound {
		if email.ID == "" {
			email.ID = uuid.New().String()
		}
		email.CreatedAt = now
		email.UpdatedAt = now
		if createErr := r.db.Create(&email).Error; createErr != nil {
			return errs.New(errs.StorageError, "failed to insert email", createErr)
		}
		return nil
	}
	if err != nil {
		return errs.New(errs.StorageError, "failed to look up email", err)
	}

	email.ID = existing.ID
	email.CreatedAt = existing.CreatedAt
	email.UpdatedAt = now
	if saveErr := r.db.Save(&email).Error; saveErr != nil {
		return errs.New(errs.StorageError, "failed to update email", saveErr)
	}
	return nil
}

func (r *EmailRepository) SearchByUser(userID string, limit int) ([]contentdomain.Email, error) {
	var emails []contentdomain.Email
	q := r.db.Where("user_id = ?", userID).Order("sent_date desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&emails).Error; err != nil {
		return nil, errs.New(errs.StorageError, "failed to search emails", err)
	}
	return emails, nil
}

// ListUnclassified returns the recently saved emails for userID that
// the Classifier (C7) has not yet processed, oldest first so a
// crash-interrupted pass resumes where it left off.
func (r *EmailRepository) ListUnclassified(userID string, limit int) ([]contentdomain.Email, error) {
	var emails []contentdomain.Email
	q := r.db.Where("user_id = ? AND is_classified = ?", userID, false).Order("sent_date asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&emails).Error; err != nil {
		return nil, errs.New(errs.StorageError, "failed to list unclassified emails", err)
	}
	return emails, nil
}

// SearchByQuery pre-filters with one SQL ILIKE of the whole query against
// subject, sender and body text, then keeps the rows the fuzzy matcher
// accepts and ranks them by fuzzy relevance. A row reaches the fuzzy
// stage only if it contains the query as typed. Mirrors
// the teacher's two-stage Gmail-search-then-fuzzy-rerank shape in
// internal/email/usecase/email_usecase.go, adapted from a remote Gmail
// API pre-filter to a SQL one since this store is local.
func (r *EmailRepository) SearchByQuery(userID, query string, limit int) ([]contentdomain.Email, error) {
	like := "%" + query + "%"
	var candidates []contentdomain.Email
	err := r.db.Where("user_id = ? AND (subject ILIKE ? OR sender ILIKE ? OR body_text ILIKE ?)",
		userID, like, like, like).Order("sent_date desc").Limit(500).Find(&candidates).Error
	if err != nil {
		return nil, errs.New(errs.StorageError, "failed to search emails", err)
	}

	type scored struct {
		email contentdomain.Email
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, e := range candidates {
		subject := ""
		if e.Subject != nil {
			subject = *e.Subject
		}
		if !fuzzy.FuzzyMatchEmail(query, subject, e.Sender, "", e.BodyText) {
			continue
		}
		ranked = append(ranked, scored{email: e, score: fuzzy.CalculateRelevanceScore(query, subject, e.Sender, "")})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]contentdomain.Email, len(ranked))
	for i, s := range ranked {
		out[i] = s.email
	}
	return out, nil
}

func (r *EmailRepository) GetByConversation(userID, conversationID string) ([]contentdomain.Email, error) {
	var emails []contentdomain.Email
	err := r.db.Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		Order("sent_date asc").Find(&emails).Error
	if err != nil {
		return nil, errs.New(errs.StorageError, "failed to fetch conversation", err)
	}
	return emails, nil
}

// UpdateClassification sets is_classified and classified_action; this is
// the only place is_classified ever becomes true (spec §4.4 invariant).
func (r *EmailRepository) UpdateClassification(userID, emailID, action string) error {
	result := r.db.Model(&contentdomain.Email{}).
		Where("user_id = ? AND email_id = ?", userID, emailID).
		Updates(map[string]interface{}{
			"is_classified":     true,
			"classified_action": action,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return errs.New(errs.StorageError, "failed to update classification", result.Error)
	}
	return nil
}
