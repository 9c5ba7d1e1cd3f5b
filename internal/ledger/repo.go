package ledger

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
)

// Repository manages persistence for credit events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.CreditEvent) error
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]models.CreditEvent, error)
	SumByUserID(ctx context.Context, userID uuid.UUID) (int, error)
	HasEventForContribution(ctx context.Context, contributionID uuid.UUID, eventType enums.CreditEventType) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a credit event repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.CreditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]models.CreditEvent, error) {
	var events []models.CreditEvent
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) SumByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	var total sql.NullInt64
	err := r.db.WithContext(ctx).
		Model(&models.CreditEvent{}).
		Where("user_id = ?", userID).
		Select("SUM(amount)").
		Scan(&total).
		Error
	if err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

func (r *repository) HasEventForContribution(ctx context.Context, contributionID uuid.UUID, eventType enums.CreditEventType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CreditEvent{}).
		Where("contribution_id = ? AND type = ?", contributionID, eventType).
		Count(&count).
		Error
	return count > 0, err
}
