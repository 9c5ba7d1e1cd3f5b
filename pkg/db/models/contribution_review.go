package models

import (
	"time"

	"github.com/google/uuid"
)

// ContributionReview is a single peer endorsement. The unique index enforces
// at most one row per (contribution, user) pair; the application layer blocks
// self-votes before the row is ever written.
type ContributionReview struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ContributionID uuid.UUID `gorm:"column:contribution_id;type:uuid;not null;uniqueIndex:idx_contribution_reviews_contribution_user"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_contribution_reviews_contribution_user"`
	Vote           int       `gorm:"column:vote;not null;default:1"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
