package images

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
	"github.com/dmcastano/evdex-backend/pkg/pagination"
)

// Repository wires together image contribution persistence helpers. Status
// writes use the same compare-and-swap pattern as vehicle contributions.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Create inserts a new pending image contribution.
func (r *Repository) Create(ctx context.Context, contribution *models.ImageContribution) (*models.ImageContribution, error) {
	if err := r.db.WithContext(ctx).Create(contribution).Error; err != nil {
		return nil, err
	}
	return contribution, nil
}

// FindByID loads the image contribution.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ImageContribution, error) {
	var contribution models.ImageContribution
	if err := r.db.WithContext(ctx).First(&contribution, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &contribution, nil
}

// MarkApproved flips pending to approved. Returns false when the CAS lost.
func (r *Repository) MarkApproved(ctx context.Context, id uuid.UUID, decidedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ImageContribution{}).
		Where("id = ? AND status = ?", id, enums.ContributionStatusPending).
		Updates(map[string]any{
			"status":      enums.ContributionStatusApproved,
			"approved_at": decidedAt,
			"updated_at":  decidedAt,
		})
	return result.RowsAffected > 0, result.Error
}

// ReplaceStagedPath swaps the staged file reference while the proposal is
// still pending.
func (r *Repository) ReplaceStagedPath(ctx context.Context, id uuid.UUID, stagedPath string, editedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ImageContribution{}).
		Where("id = ? AND status = ?", id, enums.ContributionStatusPending).
		Updates(map[string]any{
			"staged_path": stagedPath,
			"updated_at":  editedAt,
		})
	return result.RowsAffected > 0, result.Error
}

// MarkRejected flips pending to rejected and stores the moderator's comment.
func (r *Repository) MarkRejected(ctx context.Context, id uuid.UUID, comment string, decidedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ImageContribution{}).
		Where("id = ? AND status = ?", id, enums.ContributionStatusPending).
		Updates(map[string]any{
			"status":            enums.ContributionStatusRejected,
			"rejection_comment": comment,
			"rejected_at":       decidedAt,
			"updated_at":        decidedAt,
		})
	return result.RowsAffected > 0, result.Error
}

// MarkCancelled flips pending to cancelled.
func (r *Repository) MarkCancelled(ctx context.Context, id uuid.UUID, decidedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ImageContribution{}).
		Where("id = ? AND status = ?", id, enums.ContributionStatusPending).
		Updates(map[string]any{
			"status":       enums.ContributionStatusCancelled,
			"cancelled_at": decidedAt,
			"updated_at":   decidedAt,
		})
	return result.RowsAffected > 0, result.Error
}

// List returns a cursor-paginated page of image contributions, newest first.
func (r *Repository) List(ctx context.Context, params pagination.Params, filters ListFilters) (*ListResult, error) {
	pageSize := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	qb := r.db.WithContext(ctx).Model(&models.ImageContribution{})
	if filters.Status != nil {
		qb = qb.Where("status = ?", *filters.Status)
	}
	if filters.UserID != nil {
		qb = qb.Where("user_id = ?", *filters.UserID)
	}
	if filters.VehicleID != nil {
		qb = qb.Where("vehicle_id = ?", *filters.VehicleID)
	}
	if cursor != nil {
		qb = qb.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.ImageContribution
	err = qb.Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return &ListResult{Contributions: rows, NextCursor: nextCursor}, nil
}

// FindOrphanedPending returns pending image contributions whose vehicle no
// longer exists.
func (r *Repository) FindOrphanedPending(ctx context.Context) ([]models.ImageContribution, error) {
	var rows []models.ImageContribution
	err := r.db.WithContext(ctx).
		Table("image_contributions ic").
		Select("ic.*").
		Joins("LEFT JOIN vehicles v ON v.id = ic.vehicle_id").
		Where("ic.status = ? AND v.id IS NULL", enums.ContributionStatusPending).
		Order("ic.created_at ASC").
		Scan(&rows).
		Error
	return rows, err
}

// CreateVehicleImage inserts the durable image row created on approval.
func (r *Repository) CreateVehicleImage(ctx context.Context, image *models.VehicleImage) error {
	return r.db.WithContext(ctx).Create(image).Error
}

// NextDisplayOrder returns one past the highest display order on the vehicle.
func (r *Repository) NextDisplayOrder(ctx context.Context, vehicleID uuid.UUID) (int, error) {
	var max sql.NullInt64
	err := r.db.WithContext(ctx).
		Model(&models.VehicleImage{}).
		Where("vehicle_id = ?", vehicleID).
		Select("MAX(display_order)").
		Scan(&max).
		Error
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}
