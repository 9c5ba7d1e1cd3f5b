package contributions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/pkg/db/models"
)

// ReviewRepository manages peer vote rows. Uniqueness per (contribution,
// user) is enforced by the store's unique index, not application locking.
type ReviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository builds a review repository tied to the provided DB.
func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *ReviewRepository) WithTx(tx *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: tx}
}

// Create inserts one vote row. A unique violation surfaces untranslated so
// the caller can map it to a conflict.
func (r *ReviewRepository) Create(ctx context.Context, review *models.ContributionReview) error {
	return r.db.WithContext(ctx).Create(review).Error
}

// CountByContribution recomputes the tally from rows.
func (r *ReviewRepository) CountByContribution(ctx context.Context, contributionID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ContributionReview{}).
		Where("contribution_id = ?", contributionID).
		Count(&count).
		Error
	return int(count), err
}

// DeleteByContribution removes every vote for the contribution. Used by the
// orphan reconciler before the contribution itself is deleted.
func (r *ReviewRepository) DeleteByContribution(ctx context.Context, contributionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("contribution_id = ?", contributionID).
		Delete(&models.ContributionReview{}).
		Error
}
