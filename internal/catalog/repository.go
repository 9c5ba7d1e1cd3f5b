package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/pagination"
)

// Repository wires together vehicle catalog persistence helpers.
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

// FindByID loads the vehicle with its approved images.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := r.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC")
		}).
		First(&vehicle, "id = ?", id).
		Error
	if err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// Exists reports whether a vehicle row with the given ID is present.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Vehicle{}).
		Where("id = ?", id).
		Count(&count).
		Error
	return count > 0, err
}

// FindByIdentity returns the vehicle matching make and model
// case-insensitively and year exactly, or nil when none exists. This is the
// identity used by duplicate detection.
func (r *Repository) FindByIdentity(ctx context.Context, make, model string, year int) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := r.db.WithContext(ctx).
		Where("LOWER(make) = ? AND LOWER(model) = ? AND year = ?",
			strings.ToLower(strings.TrimSpace(make)),
			strings.ToLower(strings.TrimSpace(model)),
			year,
		).
		First(&vehicle).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &vehicle, nil
}

// FindNearYear returns vehicles with the same make and model whose year falls
// within the given window around year, excluding the exact year. Used for
// near-duplicate suggestions.
func (r *Repository) FindNearYear(ctx context.Context, make, model string, year, window int) ([]models.Vehicle, error) {
	var rows []models.Vehicle
	err := r.db.WithContext(ctx).
		Where("LOWER(make) = ? AND LOWER(model) = ?",
			strings.ToLower(strings.TrimSpace(make)),
			strings.ToLower(strings.TrimSpace(model)),
		).
		Where("year BETWEEN ? AND ?", year-window, year+window).
		Where("year <> ?", year).
		Order("year ASC").
		Find(&rows).
		Error
	return rows, err
}

// Create inserts a new vehicle row. Called inside the approval transaction.
func (r *Repository) Create(ctx context.Context, vehicle *models.Vehicle) (*models.Vehicle, error) {
	if err := r.db.WithContext(ctx).Create(vehicle).Error; err != nil {
		return nil, err
	}
	return vehicle, nil
}

// Update overwrites an existing vehicle row. Called inside the approval
// transaction when an update contribution is applied.
func (r *Repository) Update(ctx context.Context, vehicle *models.Vehicle) (*models.Vehicle, error) {
	if err := r.db.WithContext(ctx).Save(vehicle).Error; err != nil {
		return nil, err
	}
	return vehicle, nil
}

// ListFilters narrows the catalog listing.
type ListFilters struct {
	Make    *string
	Model   *string
	Year    *int
	YearMin *int
	YearMax *int
	Query   string
}

// ListResult is one page of catalog rows plus the continuation cursor.
type ListResult struct {
	Vehicles   []models.Vehicle
	NextCursor string
}

// List returns a cursor-paginated page of vehicles, newest first.
func (r *Repository) List(ctx context.Context, params pagination.Params, filters ListFilters) (*ListResult, error) {
	pageSize := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	qb := r.db.WithContext(ctx).Model(&models.Vehicle{})
	if filters.Make != nil {
		qb = qb.Where("LOWER(make) = ?", strings.ToLower(*filters.Make))
	}
	if filters.Model != nil {
		qb = qb.Where("LOWER(model) = ?", strings.ToLower(*filters.Model))
	}
	if filters.Year != nil {
		qb = qb.Where("year = ?", *filters.Year)
	}
	if filters.YearMin != nil {
		qb = qb.Where("year >= ?", *filters.YearMin)
	}
	if filters.YearMax != nil {
		qb = qb.Where("year <= ?", *filters.YearMax)
	}
	if search := strings.TrimSpace(filters.Query); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		qb = qb.Where("(LOWER(make) LIKE ? OR LOWER(model) LIKE ?)", pattern, pattern)
	}
	if cursor != nil {
		qb = qb.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Vehicle
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

	return &ListResult{Vehicles: rows, NextCursor: nextCursor}, nil
}

// Delete removes the vehicle and its image rows. Returns the number of
// vehicle rows removed so callers can distinguish a missing id.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	if err := r.db.WithContext(ctx).
		Where("vehicle_id = ?", id).
		Delete(&models.VehicleImage{}).
		Error; err != nil {
		return 0, err
	}
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Vehicle{})
	return result.RowsAffected, result.Error
}

// TouchUpdatedAt bumps the vehicle row when only its images changed.
func (r *Repository) TouchUpdatedAt(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Vehicle{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).
		Error
}
